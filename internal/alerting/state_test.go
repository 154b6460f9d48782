package alerting

import (
	"testing"
	"time"
)

func TestStateMachineFiresAfterForDuration(t *testing.T) {
	sm := NewStateMachine(time.Hour)
	now := time.Now()
	key := Key("high_latency", map[string]string{"database": "db1"}, nil)

	state, fired, _ := sm.Evaluate(key, 2*time.Second, true, now)
	if state != StatePending || fired {
		t.Fatalf("expected pending on first active evaluation, got %v fired=%v", state, fired)
	}

	state, fired, _ = sm.Evaluate(key, 2*time.Second, true, now.Add(time.Second))
	if state != StatePending || fired {
		t.Fatalf("expected still pending before the for-duration elapses, got %v", state)
	}

	state, fired, _ = sm.Evaluate(key, 2*time.Second, true, now.Add(3*time.Second))
	if state != StateFiring || !fired {
		t.Fatalf("expected firing once the for-duration elapses, got %v fired=%v", state, fired)
	}

	// Already sent: doesn't re-fire on the next cycle while still active.
	state, fired, _ = sm.Evaluate(key, 2*time.Second, true, now.Add(4*time.Second))
	if state != StateFiring || fired {
		t.Fatalf("expected firing without a re-fire notification, got %v fired=%v", state, fired)
	}
}

func TestStateMachineResetsOnInactive(t *testing.T) {
	sm := NewStateMachine(time.Hour)
	now := time.Now()
	key := Key("high_latency", map[string]string{"database": "db1"}, nil)

	sm.Evaluate(key, time.Second, true, now)
	state, _, _ := sm.Evaluate(key, time.Second, false, now.Add(time.Millisecond))
	if state != StateInactive {
		t.Fatalf("expected inactive once condition clears, got %v", state)
	}

	// Re-activation restarts the for-duration clock rather than resuming it.
	state, fired, _ := sm.Evaluate(key, time.Second, true, now.Add(2*time.Millisecond))
	if state != StatePending || fired {
		t.Fatalf("expected pending (clock restarted) on re-activation, got %v fired=%v", state, fired)
	}
}

func TestStateMachineGCRemovesStaleInactiveSeries(t *testing.T) {
	sm := NewStateMachine(time.Minute)
	now := time.Now()
	key := Key("alert", map[string]string{"database": "db1"}, nil)
	sm.Evaluate(key, time.Second, true, now)
	sm.Evaluate(key, time.Second, false, now)

	sm.GC(now.Add(2 * time.Minute))
	if _, ok := sm.series[key]; ok {
		t.Fatal("expected stale inactive series to be garbage collected")
	}
}

func TestStateMachineGCRemovesStaleFiringSeries(t *testing.T) {
	sm := NewStateMachine(time.Minute)
	now := time.Now()
	key := Key("alert", map[string]string{"database": "db1"}, nil)

	// Drive the series into firing and leave it there (e.g. the query that
	// fed it was removed or started failing fatally): no further
	// evaluations ever arrive, so lastSeen never advances.
	sm.Evaluate(key, time.Second, true, now)
	state, _, _ := sm.Evaluate(key, time.Second, true, now.Add(2*time.Second))
	if state != StateFiring {
		t.Fatalf("expected firing, got %v", state)
	}

	// Staleness alone, with no active/firing qualifier, must still expire
	// it — otherwise a series whose query stopped running would pin a
	// pending/firing alert state in memory forever.
	sm.GC(now.Add(2 * time.Minute))
	if _, ok := sm.series[key]; ok {
		t.Fatal("expected stale firing series to be garbage collected")
	}
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition(">= 100")
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	if !c.Evaluate(100) || !c.Evaluate(150) || c.Evaluate(99) {
		t.Fatal("unexpected evaluation result")
	}
}
