package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/metrics"
	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/alpacanetworks/telemon/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Uploader delivers a single ping. onComplete is called exactly once,
// with nil when the server answered.
type Uploader interface {
	Upload(p ping.Ping, onComplete func(error))
}

// Scheduler uploads the pending pings of one type as a batch, gated by
// the per-type daily quota.
type Scheduler struct {
	settings   config.Settings
	storage    storage.Storage
	uploader   Uploader
	dispatcher *Dispatcher
	metrics    *metrics.Uploads
	now        func() time.Time

	mu       sync.Mutex
	inflight int
	idle     chan struct{}
	closed   atomic.Bool
}

func NewScheduler(settings config.Settings, store storage.Storage, uploader Uploader, m *metrics.Uploads) *Scheduler {
	return &Scheduler{
		settings:   settings,
		storage:    store,
		uploader:   uploader,
		dispatcher: NewDispatcher(),
		metrics:    m,
		now:        time.Now,
	}
}

// ScheduleUpload uploads every pending ping of pingType and calls
// onComplete once all of them resolved. When the daily quota is reached
// nothing is loaded or sent and onComplete is never called.
func (s *Scheduler) ScheduleUpload(pingType string, onComplete func()) {
	s.Schedule(pingType, onComplete)
}

// Schedule is ScheduleUpload reporting whether the batch was started.
func (s *Scheduler) Schedule(pingType string, onComplete func()) bool {
	if s.hasReachedDailyUploadLimit(pingType) {
		log.Debug().Msgf("Daily upload limit reached for %s pings, skipping.", pingType)
		s.metrics.ObserveBatch(pingType, metrics.BatchSkipped)
		return false
	}
	s.metrics.ObserveBatch(pingType, metrics.BatchStarted)

	pings, err := s.storage.Load(pingType)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to load pending %s pings.", pingType)
		pings = nil
	}
	log.Debug().Msgf("Uploading %d %s pings.", len(pings), pingType)

	s.begin()
	var wg sync.WaitGroup
	for _, p := range pings {
		wg.Add(1)
		s.uploader.Upload(p, func(err error) {
			defer wg.Done()
			if err != nil {
				log.Error().Err(err).Msg("Error uploading ping")
			}
			s.record(p, err)
		})
	}

	go func() {
		defer s.end()
		wg.Wait()
		if onComplete != nil {
			s.dispatcher.Dispatch(onComplete)
		}
	}()

	return true
}

func (s *Scheduler) record(p ping.Ping, uploadErr error) {
	recorder, ok := s.storage.(storage.Recorder)
	if !ok {
		return
	}
	if s.closed.Load() {
		log.Debug().Msgf("Scheduler closed, not recording upload of ping %s.", p.ID)
		return
	}
	if err := recorder.RecordUpload(p, uploadErr); err != nil {
		log.Error().Err(err).Msgf("Failed to record upload of ping %s.", p.ID)
	}
}

func (s *Scheduler) hasReachedDailyUploadLimit(pingType string) bool {
	value, ok := s.storage.Get(storage.LastUploadTimestampKey(pingType))
	if !ok {
		return false
	}
	seconds, ok := storage.Float64Value(value)
	if !ok {
		log.Warn().Msgf("Ignoring malformed upload timestamp for %s pings: %v", pingType, value)
		return false
	}
	if !storage.SameDay(storage.FromEpochSeconds(seconds), s.now(), s.settings.Location) {
		return false
	}

	value, ok = s.storage.Get(storage.DailyUploadCountKey(pingType))
	if !ok {
		return false
	}
	count, ok := storage.Int64Value(value)
	if !ok {
		log.Warn().Msgf("Ignoring malformed upload count for %s pings: %v", pingType, value)
		return false
	}

	return count >= int64(s.settings.MaxUploadsPerDay)
}

func (s *Scheduler) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Scheduler) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// Wait blocks until every started batch has resolved all of its uploads,
// or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers the completions of finished batches and stops the
// dispatcher. Uploads that resolve afterwards are no longer recorded and
// their batches never complete; call Wait first to let them finish.
func (s *Scheduler) Close() {
	s.closed.Store(true)
	s.dispatcher.Stop()
}
