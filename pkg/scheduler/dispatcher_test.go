package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherRunsInOrder(t *testing.T) {
	d := NewDispatcher()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		d.Dispatch(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	d.Stop()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewDispatcher()
	d.Stop()
	d.Stop()

	var ran bool
	d.Dispatch(func() { ran = true })
	assert.False(t, ran, "Nothing runs after Stop.")
}

func TestDispatcherIgnoresNil(t *testing.T) {
	d := NewDispatcher()
	d.Dispatch(nil)

	done := make(chan struct{})
	d.Dispatch(func() { close(done) })
	<-done
	d.Stop()
}
