package session

import "sync"

// State is the connection state of the single WhatsApp session. The member
// set mirrors the transport's own lifecycle enumeration.
type State string

const (
	StateUnlaunched      State = "UNLAUNCHED"
	StateOpening         State = "OPENING"
	StatePairing         State = "PAIRING"
	StateConnected       State = "CONNECTED"
	StateTimeout         State = "TIMEOUT"
	StateConflict        State = "CONFLICT"
	StateUnpaired        State = "UNPAIRED"
	StateUnlaunchedOther State = "UNLAUNCHED_OTHER"
)

// CanSend reports whether outbound operations are permitted in this state.
// CONNECTED is the only state that permits sends.
func (s State) CanSend() bool {
	return s == StateConnected
}

// Tracker holds the authoritative current state of the session. Exactly one
// component writes it (the supervisor's transport event loop); everything
// else only reads.
type Tracker struct {
	mu      sync.RWMutex
	current State
}

// NewTracker returns a tracker starting in UNLAUNCHED.
func NewTracker() *Tracker {
	return &Tracker{current: StateUnlaunched}
}

// Current returns the current session state.
func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set records a state transition. Callers other than the designated
// transport-event writer must not use this.
func (t *Tracker) Set(next State) {
	t.mu.Lock()
	t.current = next
	t.mu.Unlock()
}
