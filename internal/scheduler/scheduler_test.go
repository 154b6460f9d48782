package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
)

func TestSchedulerStartsAndStopsEveryCall(t *testing.T) {
	s := New(log.NewNopLogger())
	var countA, countB int32
	s.Add("a", &IntervalIterator{Interval: 15 * time.Millisecond}, func(context.Context) {
		atomic.AddInt32(&countA, 1)
	})
	s.Add("b", &IntervalIterator{Interval: 15 * time.Millisecond}, func(context.Context) {
		atomic.AddInt32(&countB, 1)
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&countA) == 0 || atomic.LoadInt32(&countB) == 0 {
		t.Fatalf("expected both calls to have fired, got a=%d b=%d", countA, countB)
	}
}

func TestSchedulerRemoveStopsAndDropsACall(t *testing.T) {
	s := New(log.NewNopLogger())
	var count int32
	s.Add("q", &IntervalIterator{Interval: 10 * time.Millisecond}, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	s.Remove("q")
	after := atomic.LoadInt32(&count)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&count) != after {
		t.Fatalf("expected no further fires after Remove, count grew from %d to %d", after, atomic.LoadInt32(&count))
	}

	// Removing an unknown name, or one already removed, is a no-op.
	s.Remove("q")
	s.Remove("does-not-exist")
}
