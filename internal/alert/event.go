package alert

import (
	"fmt"
	"math"
	"strconv"
	"time"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

// Kind categorizes a transition.
type Kind string

const (
	// KindManualUnderAttack means under_attack was enabled outside the guard.
	KindManualUnderAttack Kind = "MANUAL_UNDER_ATTACK"
	// KindManualChange means the level was changed to a normal mode outside the guard.
	KindManualChange Kind = "MANUAL_CHANGE"
	// KindEntered means the guard enabled under_attack.
	KindEntered Kind = "ENTERED"
	// KindExited means the guard left under_attack.
	KindExited Kind = "EXITED"
)

// TimeLayout is the UTC timestamp format used in messages.
const TimeLayout = "2006-01-02T15:04:05Z"

// Event is one transition worth telling an operator about.
type Event struct {
	// Kind is the transition type.
	Kind Kind
	// Host is the machine the guard runs on.
	Host string
	// Time is when the transition was observed.
	Time time.Time
	// Mode is the resulting or target mode.
	Mode domain.Mode
	// PreviousMode is the mode before the transition.
	PreviousMode domain.Mode
	// Load is the 5-minute load average at the time.
	Load float64
	// Threshold is the configured load threshold.
	Threshold float64
}

// Text renders the one-line human message. Every kind ends with Details.
func (e Event) Text() string {
	at := e.Timestamp()

	var head string

	switch e.Kind {
	case KindManualUnderAttack:
		head = fmt.Sprintf("%s: CF mode set to UNDER ATTACK manually at %s", e.Host, at)
	case KindManualChange:
		head = fmt.Sprintf("%s: CF mode set to '%s' manually at %s", e.Host, e.Mode, at)
	case KindEntered:
		head = fmt.Sprintf("%s: ENTERED UNDER ATTACK at %s", e.Host, at)
	case KindExited:
		head = fmt.Sprintf("%s: EXITED UNDER ATTACK → '%s' at %s", e.Host, e.Mode, at)
	default:
		head = fmt.Sprintf("%s: CF mode is '%s' at %s", e.Host, e.Mode, at)
	}

	return head + " " + e.Details()
}

// Details renders the mode and the load against the threshold.
func (e Event) Details() string {
	return fmt.Sprintf("(mode=%s, load=%s / threshold=%s)", e.Mode, FormatLoad(e.Load), FormatLoad(e.Threshold))
}

// Timestamp returns the event time in TimeLayout.
func (e Event) Timestamp() string {
	return e.Time.UTC().Format(TimeLayout)
}

// FormatLoad prints a load value with at least one decimal, e.g. 7.0 or 9.35.
func FormatLoad(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}

	return strconv.FormatFloat(v, 'f', -1, 64)
}
