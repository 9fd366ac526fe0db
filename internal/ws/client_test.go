package ws

import (
	"testing"

	"github.com/manpreetbhatti/canvasroom/internal/protocol"
	"github.com/manpreetbhatti/canvasroom/internal/ratelimit"
)

// One token per class, refilled too slowly to matter during a test
func tightLimits() *ratelimit.Set {
	return ratelimit.NewSet(ratelimit.Policy{
		Relay:   ratelimit.Rate{PerSecond: 0.001, Burst: 1},
		History: ratelimit.Rate{PerSecond: 0.001, Burst: 1},
	})
}

func TestAdmitWithinBudget(t *testing.T) {
	limits := tightLimits()
	if v := admit(limits, protocol.EventDrawMove); v != admitForward {
		t.Errorf("Expected relay forwarded, got %d", v)
	}
	if v := admit(limits, protocol.EventStrokeCommit); v != admitForward {
		t.Errorf("Expected commit forwarded, got %d", v)
	}
}

func TestAdmitDropsThrottledRelay(t *testing.T) {
	limits := tightLimits()
	admit(limits, protocol.EventDrawMove)

	for _, e := range []protocol.Event{protocol.EventDrawStart, protocol.EventDrawMove, protocol.EventCursorMove} {
		if v := admit(limits, e); v != admitDrop {
			t.Errorf("%s: expected drop, got %d", e, v)
		}
	}
}

func TestAdmitNeverDropsDrawEnd(t *testing.T) {
	limits := tightLimits()
	admit(limits, protocol.EventDrawMove)

	if v := admit(limits, protocol.EventDrawEnd); v != admitForward {
		t.Errorf("Expected draw:end forwarded over budget, got %d", v)
	}
}

func TestAdmitClosesOnThrottledHistory(t *testing.T) {
	for _, e := range []protocol.Event{protocol.EventStrokeCommit, protocol.EventUndo, protocol.EventRedo, protocol.EventClearAll} {
		limits := tightLimits()
		admit(limits, protocol.EventStrokeCommit)

		if v := admit(limits, e); v != admitClose {
			t.Errorf("%s: expected close over budget, got %d", e, v)
		}
	}
}

func TestAdmitClassesAreIndependent(t *testing.T) {
	limits := tightLimits()
	admit(limits, protocol.EventDrawMove)
	admit(limits, protocol.EventDrawMove)

	if v := admit(limits, protocol.EventStrokeCommit); v != admitForward {
		t.Errorf("Relay flood should not cost history budget, got %d", v)
	}
}
