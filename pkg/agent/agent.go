package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianbrad/queue"
	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/measurement"
	"github.com/alpacanetworks/telemon/pkg/ping"
	"github.com/rs/zerolog/log"
)

const tickInterval = time.Second

// BatchScheduler starts an upload batch and reports whether it did.
// onComplete is only called for started batches.
type BatchScheduler interface {
	Schedule(pingType string, onComplete func()) bool
}

type Saver interface {
	Save(ctx context.Context, p ping.Ping) error
}

type task struct {
	pingType string
	nextRun  time.Time
}

// Agent uploads every configured ping type once per interval. A type is
// not scheduled again until its previous batch completed or was skipped.
type Agent struct {
	scheduler BatchScheduler
	saver     Saver
	builders  map[string]measurement.Builder
	pingTypes []string
	interval  time.Duration
	record    bool

	tasks    *queue.Priority[*task]
	tick     time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
	started  atomic.Bool
	loopDone chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAgent returns an agent for settings.PingTypes. When
// settings.RecordPings is set, a fresh ping is saved before each batch
// of a type that has a builder.
func NewAgent(settings config.Settings, scheduler BatchScheduler, saver Saver, builders map[string]measurement.Builder) *Agent {
	return &Agent{
		scheduler: scheduler,
		saver:     saver,
		builders:  builders,
		pingTypes: settings.PingTypes,
		interval:  settings.Interval,
		record:    settings.RecordPings && saver != nil,
		tasks:     queue.NewPriority([]*task{}, lessFunc),
		tick:      tickInterval,
		now:       time.Now,
		loopDone:  make(chan struct{}),
		stopChan:  make(chan struct{}),
	}
}

func lessFunc(elem, otherElem *task) bool {
	return elem.nextRun.Before(otherElem.nextRun)
}

// Start runs the agent until ctx is done or Stop is called. Every ping
// type is due immediately.
func (a *Agent) Start(ctx context.Context) {
	a.started.Store(true)
	defer close(a.loopDone)

	now := a.now()
	for _, pingType := range a.pingTypes {
		a.offer(&task{pingType: pingType, nextRun: now})
	}

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	a.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.runDue(ctx)
		}
	}
}

// Stop ends the loop and waits for tasks that are still recording or
// starting a batch. Batches already started keep running.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
	})
	if a.started.Load() {
		<-a.loopDone
	}
	a.wg.Wait()
}

func (a *Agent) runDue(ctx context.Context) {
	now := a.now()
	for {
		next, err := a.tasks.Peek()
		if err != nil || next.nextRun.After(now) {
			return
		}

		t, err := a.tasks.Get()
		if err != nil {
			return
		}

		a.wg.Add(1)
		go a.executeTask(ctx, t)
	}
}

func (a *Agent) executeTask(ctx context.Context, t *task) {
	defer a.wg.Done()

	if a.record {
		a.recordPing(ctx, t.pingType)
	}

	started := a.scheduler.Schedule(t.pingType, func() {
		log.Debug().Msgf("Finished uploading %s pings.", t.pingType)
		a.reschedule(t)
	})
	if !started {
		a.reschedule(t)
	}
}

func (a *Agent) recordPing(ctx context.Context, pingType string) {
	builder, ok := a.builders[pingType]
	if !ok {
		return
	}

	p, err := builder.Build(ctx, pingType)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to build %s ping.", pingType)
		return
	}

	if err = a.saver.Save(ctx, p); err != nil {
		log.Error().Err(err).Msgf("Failed to save %s ping.", pingType)
	}
}

func (a *Agent) reschedule(t *task) {
	t.nextRun = a.now().Add(a.interval)
	a.offer(t)
}

func (a *Agent) offer(t *task) {
	if err := a.tasks.Offer(t); err != nil {
		log.Error().Err(err).Msgf("Failed to queue %s pings.", t.pingType)
	}
}
