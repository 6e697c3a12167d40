package guard

import "time"

// State is what the guard remembers between runs.
type State struct {
	// CachedMode is the mode the guard believes is active remotely.
	CachedMode Mode
	// ActivatedAt is when the current under_attack window began.
	// The zero value means no window is recorded. A recorded but unparsable
	// value is kept as the Unix epoch, which is always past any cooldown.
	ActivatedAt time.Time
}

// HasActivation reports whether an under_attack window is recorded.
func (s *State) HasActivation() bool {
	return !s.ActivatedAt.IsZero()
}

// Clone returns a copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}

// AlertState holds the alert cooldown timestamp.
type AlertState struct {
	// LastAlertAt is when the last notification was sent or attempted.
	// The zero value means no notification was ever recorded.
	LastAlertAt time.Time
}
