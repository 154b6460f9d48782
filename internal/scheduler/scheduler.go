package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Scheduler owns one Call per timed query and starts/stops them together.
type Scheduler struct {
	logger log.Logger

	mu    sync.Mutex
	calls map[string]*Call
}

// New creates an empty Scheduler.
func New(logger log.Logger) *Scheduler {
	return &Scheduler{logger: logger, calls: make(map[string]*Call)}
}

// Add registers a named Call. It replaces any previously registered Call of
// the same name; callers must Stop the scheduler, or the individual call,
// before replacing a running one.
func (s *Scheduler) Add(name string, iter TimesIterator, fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name] = NewCall(iter, fn)
}

// Start starts every registered Call.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.calls {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("starting %q: %w", name, err)
		}
	}
	return nil
}

// Stop stops every registered Call, logging (rather than failing) any that
// was already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.calls {
		if err := c.Stop(); err != nil {
			level.Debug(s.logger).Log("msg", "call already stopped", "call", name, "err", err)
		}
	}
}

// Remove stops and permanently drops a named Call, the way the executor
// retires a query once it has failed fatally on every database it
// targets (spec.md §3 "Lifecycles", §4.4 step 1). A no-op if the name
// isn't registered.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[name]
	if !ok {
		return
	}
	if err := c.Stop(); err != nil {
		level.Debug(s.logger).Log("msg", "call already stopped", "call", name, "err", err)
	}
	delete(s.calls, name)
}
