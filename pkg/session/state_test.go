package session

import "testing"

func TestTrackerStartsUnlaunched(t *testing.T) {
	tracker := NewTracker()
	if got := tracker.Current(); got != StateUnlaunched {
		t.Fatalf("initial state = %q, want %q", got, StateUnlaunched)
	}
}

func TestTrackerSet(t *testing.T) {
	tracker := NewTracker()
	tracker.Set(StateConnected)
	if got := tracker.Current(); got != StateConnected {
		t.Fatalf("state = %q, want %q", got, StateConnected)
	}

	tracker.Set(StateConflict)
	if got := tracker.Current(); got != StateConflict {
		t.Fatalf("state = %q, want %q", got, StateConflict)
	}
}

func TestCanSendOnlyWhenConnected(t *testing.T) {
	states := []State{
		StateUnlaunched, StateOpening, StatePairing, StateTimeout,
		StateConflict, StateUnpaired, StateUnlaunchedOther,
	}
	for _, state := range states {
		if state.CanSend() {
			t.Fatalf("state %q should not permit sends", state)
		}
	}

	if !StateConnected.CanSend() {
		t.Fatal("CONNECTED should permit sends")
	}
}
