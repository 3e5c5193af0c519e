package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

const (
	pingsTable = "pings"
	kvTable    = "kv_store"

	writeRetryTime = 3 * time.Second
)

// Store keeps pending pings and quota counters in sqlite. It satisfies
// Storage and Recorder.
type Store struct {
	client   *entsql.Driver
	location *time.Location
	now      func() time.Time

	// serializes read-modify-write of the quota counters
	mu sync.Mutex
}

func NewStore(client *entsql.Driver, location *time.Location) *Store {
	if location == nil {
		location = time.UTC
	}
	return &Store{
		client:   client,
		location: location,
		now:      time.Now,
	}
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// Save stores p as pending.
func (s *Store) Save(ctx context.Context, p ping.Ping) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid ping: %w", err)
	}

	measurements, err := p.MeasurementsJSON()
	if err != nil {
		return err
	}

	created := p.Created
	if created.IsZero() {
		created = s.now()
	}

	query, args := builder().Insert(pingsTable).
		Columns("id", "ping_type", "upload_path", "measurements", "created_at").
		Values(p.ID, p.Type, p.UploadPath, string(measurements), created.UnixNano()).
		Query()

	return s.client.Exec(ctx, query, args, nil)
}

// Load returns the pending pings of pingType, oldest first.
func (s *Store) Load(pingType string) ([]ping.Ping, error) {
	return s.LoadContext(context.Background(), pingType)
}

func (s *Store) LoadContext(ctx context.Context, pingType string) ([]ping.Ping, error) {
	query, args := builder().
		Select("id", "ping_type", "upload_path", "measurements", "created_at").
		From(entsql.Table(pingsTable)).
		Where(entsql.EQ("ping_type", pingType)).
		OrderBy("created_at", "id").
		Query()

	var rows entsql.Rows
	if err := s.client.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pings []ping.Ping
	for rows.Next() {
		var (
			p            ping.Ping
			measurements string
			created      int64
		)
		if err := rows.Scan(&p.ID, &p.Type, &p.UploadPath, &measurements, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(measurements), &p.Measurements); err != nil {
			log.Warn().Err(err).Msgf("Skipping %s ping %s with unreadable measurements.", p.Type, p.ID)
			continue
		}
		p.Created = time.Unix(0, created)
		pings = append(pings, p)
	}

	return pings, rows.Err()
}

// Delete removes a pending ping.
func (s *Store) Delete(ctx context.Context, id string) error {
	query, args := builder().Delete(pingsTable).
		Where(entsql.EQ("id", id)).
		Query()
	return s.client.Exec(ctx, query, args, nil)
}

// Get returns the value stored under key. Lookup errors are logged and
// reported as a missing value.
func (s *Store) Get(key string) (interface{}, bool) {
	value, ok, err := get(context.Background(), s.client, key)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to read %s.", key)
		return nil, false
	}
	return value, ok
}

func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	return set(ctx, s.client, key, value)
}

// NextSequence increments and returns the per-type sequence number.
func (s *Store) NextSequence(ctx context.Context, pingType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64
	err := s.inTx(ctx, func(tx dialect.Tx) error {
		value, ok, err := get(ctx, tx, SequenceKey(pingType))
		if err != nil {
			return err
		}
		seq = 0
		if ok {
			seq, _ = Int64Value(value)
		}
		seq++
		return set(ctx, tx, SequenceKey(pingType), seq)
	})

	return seq, err
}

// RecordUpload counts one upload attempt against the current calendar
// day of p.Type, whatever its outcome, and removes p from the pending
// set when it was delivered.
func (s *Store) RecordUpload(p ping.Ping, uploadErr error) error {
	ctx := context.Background()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx dialect.Tx) error {
		count := int64(0)
		if last, ok, err := get(ctx, tx, LastUploadTimestampKey(p.Type)); err != nil {
			return err
		} else if ok {
			if seconds, ok := Float64Value(last); ok && SameDay(FromEpochSeconds(seconds), now, s.location) {
				value, found, err := get(ctx, tx, DailyUploadCountKey(p.Type))
				if err != nil {
					return err
				}
				if found {
					count, _ = Int64Value(value)
				}
			}
		}

		if err := set(ctx, tx, LastUploadTimestampKey(p.Type), EpochSeconds(now)); err != nil {
			return err
		}
		if err := set(ctx, tx, DailyUploadCountKey(p.Type), count+1); err != nil {
			return err
		}

		if uploadErr != nil {
			return nil
		}

		query, args := builder().Delete(pingsTable).
			Where(entsql.EQ("id", p.ID)).
			Query()
		return tx.Exec(ctx, query, args, nil)
	})
}

// inTx runs fn in a transaction, retrying the whole transaction while
// sqlite reports the database as busy or locked. Any other error is
// returned at once.
func (s *Store) inTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxElapsedTime = writeRetryTime

	var attempt int
	operation := func() error {
		attempt++
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return backoff.Permanent(err)
		}
		log.Debug().Err(err).Msgf("Store is busy: %d attempt", attempt)
		return err
	}

	return backoff.Retry(operation, b)
}

func (s *Store) runTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sqlite primary result codes; extended codes keep them in the low byte.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// isBusy reports whether err is a sqlite driver error (glebarez or
// modernc, both expose Code) for a busy or locked database.
func isBusy(err error) bool {
	var coded interface{ Code() int }
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.Code() & 0xff {
	case sqliteBusy, sqliteLocked:
		return true
	default:
		return false
	}
}

func get(ctx context.Context, q dialect.ExecQuerier, key string) (interface{}, bool, error) {
	query, args := builder().Select("value").
		From(entsql.Table(kvTable)).
		Where(entsql.EQ("name", key)).
		Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, false, rows.Err()
	}

	var value interface{}
	if err := rows.Scan(&value); err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}

	return value, true, nil
}

func set(ctx context.Context, q dialect.ExecQuerier, key string, value interface{}) error {
	query, args := builder().Insert(kvTable).
		Columns("name", "value").
		Values(key, value).
		OnConflict(
			entsql.ConflictColumns("name"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	return q.Exec(ctx, query, args, nil)
}
