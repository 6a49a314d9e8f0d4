// Package admission bounds the number of concurrently serviced client
// connections with a fixed pool of slots and a bounded wait queue.
package admission

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when all slots are taken and the wait queue
// has reached capacity (or the wait timed out). The caller should close
// the connection without reading from it.
var ErrQueueFull = errors.New("admission queue full")

// Controller is a capacity pool of max slots. At most queueSize callers
// may wait for a free slot, each for at most queueTimeout; everything
// beyond that is rejected immediately. Safe for concurrent use.
type Controller struct {
	slots        chan struct{}
	queueSize    int
	queueTimeout time.Duration

	mu      sync.Mutex
	waiting int
}

// New creates a Controller with max slots. queueSize bounds how many
// connections may wait for a slot; queueTimeout bounds how long each one
// waits, with 0 meaning wait until the context is done.
func New(max, queueSize int, queueTimeout time.Duration) *Controller {
	return &Controller{
		slots:        make(chan struct{}, max),
		queueSize:    queueSize,
		queueTimeout: queueTimeout,
	}
}

// Acquire claims a slot, waiting in the bounded queue when none is free.
// On success the caller must call Release exactly once, typically via
// defer immediately after the Acquire call. Fails with ErrQueueFull when
// the queue is full or the wait times out, and with the context error
// when ctx is done first.
func (c *Controller) Acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}

	c.mu.Lock()
	if c.waiting >= c.queueSize {
		c.mu.Unlock()
		return ErrQueueFull
	}
	c.waiting++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiting--
		c.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if c.queueTimeout > 0 {
		t := time.NewTimer(c.queueTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case c.slots <- struct{}{}:
		return nil
	case <-timeout:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the pool. Calling it without a matching
// Acquire panics, which would indicate a slot accounting bug.
func (c *Controller) Release() {
	select {
	case <-c.slots:
	default:
		panic("admission: Release without matching Acquire")
	}
}

// Active reports how many slots are currently held.
func (c *Controller) Active() int {
	return len(c.slots)
}

// Waiting reports how many connections are queued for a slot.
func (c *Controller) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}
