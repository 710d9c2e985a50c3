package progress

import (
	"testing"
	"time"
)

func TestTracker_ReportsStartUpdateComplete(t *testing.T) {
	var calls []string
	cb := func(stage string, current, total int64, message string) {
		calls = append(calls, message)
	}

	tr := NewTracker(cb, 2)
	tr.StartStage("columns", 10)
	tr.UpdateStage("columns", 5, "")
	tr.CompleteStage("columns", 10)

	if len(calls) != 3 {
		t.Fatalf("got %d callback invocations, want 3", len(calls))
	}
}

func TestTracker_UpdateUnknownStageIsNoOp(t *testing.T) {
	tr := NewTracker(nil, 1)
	tr.UpdateStage("missing", 1, "x") // must not panic
}

func TestThrottled_SuppressesRapidCalls(t *testing.T) {
	n := 0
	cb := Throttled(func(string, int64, int64, string) { n++ }, time.Hour)

	cb("s", 0, 1, "")
	cb("s", 1, 1, "")
	cb("s", 2, 1, "")

	if n != 1 {
		t.Fatalf("got %d calls through, want 1", n)
	}
}

// P6: a streaming extraction whose epoch is invalidated before column k
// must observe a stale snapshot.
func TestEpoch_BumpInvalidatesSnapshot(t *testing.T) {
	e := NewEpoch()
	snap := e.Snapshot()
	if !e.Valid(snap) {
		t.Fatal("fresh snapshot should be valid")
	}
	e.Bump()
	if e.Valid(snap) {
		t.Fatal("snapshot should be invalid after Bump")
	}
}
