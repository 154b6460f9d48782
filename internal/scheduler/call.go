package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start on a Call that is already running.
var ErrAlreadyRunning = errors.New("scheduler: call already running")

// ErrNotRunning is returned by Stop on a Call that isn't running.
var ErrNotRunning = errors.New("scheduler: call not running")

// Call repeatedly invokes fn at the times produced by a TimesIterator. It
// mirrors periodic_call.py's TimedCall/PeriodicCall: Stop cancels the
// pending wait and waits for the scheduling loop to exit, but does not wait
// for an in-flight callback invocation to finish, since callbacks are
// launched in their own goroutine and may overlap with Stop returning.
type Call struct {
	iter TimesIterator
	fn   func(context.Context)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewCall builds a Call that invokes fn at times produced by iter.
func NewCall(iter TimesIterator, fn func(context.Context)) *Call {
	return &Call{iter: iter, fn: fn}
}

// Start begins the scheduling loop. It returns ErrAlreadyRunning if the
// Call is already started.
func (c *Call) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.running = true
	go c.loop(runCtx, c.stopped)
	return nil
}

// Stop cancels the scheduling loop and waits for it to exit. It returns
// ErrNotRunning if the Call isn't running.
func (c *Call) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel := c.cancel
	stopped := c.stopped
	c.running = false
	c.mu.Unlock()

	cancel()
	<-stopped
	return nil
}

func (c *Call) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	next, ok := c.iter.Next(time.Now())
	if !ok {
		c.markStopped()
		return
	}
	for {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			go c.fn(ctx)
			// Fire times that already passed while the loop was held up are
			// consumed rather than replayed one after another.
			prev := next
			next, ok = c.iter.Next(next)
			for ok && next.Before(time.Now()) && next.After(prev) {
				prev = next
				next, ok = c.iter.Next(next)
			}
			if !ok {
				c.markStopped()
				return
			}
		}
	}
}

// markStopped flips running to false when the loop exits on its own,
// because the time iterator was exhausted, rather than because Stop was
// called — periodic_call.py's TimedCall stops the same way once its
// times_iter raises StopIteration.
func (c *Call) markStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.running = false
		if c.cancel != nil {
			c.cancel()
		}
	}
}
