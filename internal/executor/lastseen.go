package executor

import (
	"strings"
	"sync"
	"time"

	"github.com/queryexporter/query-exporter/internal/model"
)

// lastSeenTracker records, per metric series, the last time it was updated,
// the way executor.py's MetricsLastSeen does, so a series that stops
// appearing in query results for longer than its metric's configured
// expiration can be retracted instead of reporting a stale value forever.
type lastSeenTracker struct {
	mu     sync.Mutex
	lastAt map[string]time.Time
	labels map[string]map[string]string
}

func newLastSeenTracker() *lastSeenTracker {
	return &lastSeenTracker{
		lastAt: make(map[string]time.Time),
		labels: make(map[string]map[string]string),
	}
}

func seriesKey(metric string, labels map[string]string) string {
	var b strings.Builder
	b.WriteString(metric)
	for _, v := range model.SortedLabelValues(labels) {
		b.WriteByte('\x00')
		b.WriteString(v)
	}
	return b.String()
}

func (t *lastSeenTracker) touch(metric string, labels map[string]string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := seriesKey(metric, labels)
	t.lastAt[key] = now
	t.labels[key] = labels
}

// expired returns the label sets of every tracked series for metric whose
// last update is older than now-expiration, and stops tracking them.
func (t *lastSeenTracker) expired(metric string, expiration time.Duration, now time.Time) []map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var stale []map[string]string
	prefix := metric + "\x00"
	for key, last := range t.lastAt {
		if key != metric && !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.Sub(last) > expiration {
			stale = append(stale, t.labels[key])
			delete(t.lastAt, key)
			delete(t.labels, key)
		}
	}
	return stale
}
