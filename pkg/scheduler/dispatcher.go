package scheduler

import (
	"sync"

	"github.com/adrianbrad/queue"
)

type task struct {
	fn func()
}

// Dispatcher runs functions one at a time, in the order they were
// dispatched, on a single goroutine.
type Dispatcher struct {
	queue    *queue.Blocking[*task]
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		queue: queue.NewBlocking[*task](nil),
		done:  make(chan struct{}),
	}
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		t := d.queue.GetWait()
		if t == nil {
			return
		}
		t.fn()
	}
}

// Dispatch enqueues fn. Functions dispatched after Stop never run.
func (d *Dispatcher) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	d.queue.OfferWait(&task{fn: fn})
}

// Stop runs everything dispatched so far and then stops the goroutine.
// It must not be called from a dispatched function.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.queue.OfferWait(nil)
	})
	<-d.done
}
