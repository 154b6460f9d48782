// Package scheduler fires query executions on a fixed interval or cron
// schedule, the way periodic_call.py's TimedCall/PeriodicCall pair drives
// the older query_exporter loop, generalized to a pluggable times iterator.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TimesIterator produces the next fire time. IntervalIterator and
// CronIterator return a time strictly after the given one; FiniteIterator
// ignores it and returns its fixed times in order. The second return value reports whether a time was produced at all; once
// it is false the iterator is exhausted and must never be called again.
// Implementations must be safe to call repeatedly until exhaustion;
// periodic_call.py's times_iter (a plain Python iterator, exhausted via
// StopIteration) is the model this mirrors.
type TimesIterator interface {
	Next(after time.Time) (time.Time, bool)
}

// IntervalIterator fires every Interval, anchored to the time of the
// previous fire (not wall-clock boundaries), so a slow callback never
// causes fires to bunch up. It never exhausts.
type IntervalIterator struct {
	Interval time.Duration
}

func (it *IntervalIterator) Next(after time.Time) (time.Time, bool) {
	return after.Add(it.Interval), true
}

// CronIterator wraps a robfig/cron schedule. Unlike IntervalIterator it is
// anchored to wall-clock time. Next returns the first occurrence after the
// given time; if the process was asleep or busy past one or more fire
// times, Call skips straight to the next one still in the future rather
// than replaying every missed fire.
type CronIterator struct {
	schedule cron.Schedule
}

// NewCronIterator parses a standard five-field cron expression.
func NewCronIterator(expr string) (*CronIterator, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return &CronIterator{schedule: schedule}, nil
}

// Next never exhausts: a cron.Schedule always has a next occurrence.
func (it *CronIterator) Next(after time.Time) (time.Time, bool) {
	return it.schedule.Next(after), true
}

// FiniteIterator wraps a fixed slice of fire times, yielding each in turn
// and reporting exhaustion once they're used up — the Go equivalent of a
// Python generator that runs out of values, used to drive the Scheduler's
// "iterator exhausted -> schedule stops cleanly" contract (spec.md §4.3)
// in tests where an always-live iterator like IntervalIterator or
// CronIterator can't exercise it.
type FiniteIterator struct {
	Times []time.Time
	index int
}

func (it *FiniteIterator) Next(after time.Time) (time.Time, bool) {
	if it.index >= len(it.Times) {
		return time.Time{}, false
	}
	t := it.Times[it.index]
	it.index++
	return t, true
}
