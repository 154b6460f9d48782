package executor

import (
	"testing"
	"time"
)

func TestLastSeenTrackerExpiresStaleSeries(t *testing.T) {
	tr := newLastSeenTracker()
	now := time.Now()
	tr.touch("widgets", map[string]string{"database": "db1"}, now)
	tr.touch("widgets", map[string]string{"database": "db2"}, now)

	// Not yet expired.
	if stale := tr.expired("widgets", time.Minute, now.Add(time.Second)); len(stale) != 0 {
		t.Fatalf("expected no stale series yet, got %+v", stale)
	}

	stale := tr.expired("widgets", time.Minute, now.Add(2*time.Minute))
	if len(stale) != 2 {
		t.Fatalf("expected both series to have expired, got %+v", stale)
	}

	// Once retracted, expired no longer reports them.
	if again := tr.expired("widgets", time.Minute, now.Add(3*time.Minute)); len(again) != 0 {
		t.Fatalf("expected retracted series to not reappear, got %+v", again)
	}
}

func TestLastSeenTrackerDoesNotConfuseMetricsWithSharedPrefix(t *testing.T) {
	tr := newLastSeenTracker()
	now := time.Now()
	tr.touch("widgets", nil, now)
	tr.touch("widgets_total", nil, now)

	stale := tr.expired("widgets", time.Minute, now.Add(2*time.Minute))
	if len(stale) != 1 {
		t.Fatalf("expected only the exact-named metric's series to expire, got %d", len(stale))
	}
}

func TestLastSeenTrackerTouchUpdatesExistingSeries(t *testing.T) {
	tr := newLastSeenTracker()
	now := time.Now()
	tr.touch("widgets", map[string]string{"database": "db1"}, now)
	tr.touch("widgets", map[string]string{"database": "db1"}, now.Add(time.Minute))

	if stale := tr.expired("widgets", time.Minute, now.Add(90*time.Second)); len(stale) != 0 {
		t.Fatalf("expected the refreshed touch to delay expiry, got %+v", stale)
	}
}
