package guard

// Level is the closed set of security levels the guard knows about.
type Level uint8

const (
	// LevelOther covers any value not listed below, including the empty string.
	LevelOther Level = iota
	// LevelOff disables the security level checks.
	LevelOff
	// LevelEssentiallyOff challenges only the most grievous offenders.
	LevelEssentiallyOff
	// LevelLow challenges only the most threatening visitors.
	LevelLow
	// LevelMedium is the usual baseline.
	LevelMedium
	// LevelHigh challenges all visitors that have exhibited threatening behavior.
	LevelHigh
	// LevelUnderAttack presents an interstitial challenge to every visitor.
	LevelUnderAttack
)

// Raw values of the known security levels.
const (
	rawOff            = "off"
	rawEssentiallyOff = "essentially_off"
	rawLow            = "low"
	rawMedium         = "medium"
	rawHigh           = "high"
	rawUnderAttack    = "under_attack"
)

//nolint:gochecknoglobals // Read-only lookup table.
var levelsByRaw = map[string]Level{
	rawOff:            LevelOff,
	rawEssentiallyOff: LevelEssentiallyOff,
	rawLow:            LevelLow,
	rawMedium:         LevelMedium,
	rawHigh:           LevelHigh,
	rawUnderAttack:    LevelUnderAttack,
}

// Mode is a security level as reported by the remote API.
// The raw string is kept verbatim so unknown levels survive a round trip.
// The zero value means "never observed".
type Mode struct {
	// raw is the exact string used remotely and in the cache file.
	raw string
	// level is derived from raw.
	level Level
}

var (
	// UnderAttack is the mode the guard switches to under high load.
	//nolint:gochecknoglobals // Immutable value, compared by ==.
	UnderAttack = Mode{raw: rawUnderAttack, level: LevelUnderAttack}
	// Medium is the default normal mode.
	//nolint:gochecknoglobals // Immutable value, compared by ==.
	Medium = Mode{raw: rawMedium, level: LevelMedium}
)

// ParseMode wraps a raw security level string. It never fails: unknown
// values map to LevelOther and keep their raw form.
func ParseMode(s string) Mode {
	return Mode{
		raw:   s,
		level: levelsByRaw[s],
	}
}

// String returns the raw security level.
func (m Mode) String() string {
	return m.raw
}

// Level returns the enumerated level.
func (m Mode) Level() Level {
	return m.level
}

// IsZero reports whether the mode was never set.
func (m Mode) IsZero() bool {
	return m.raw == ""
}

// IsUnderAttack reports whether the mode is under_attack.
// Every other mode, known or not, is treated as normal.
func (m Mode) IsUnderAttack() bool {
	return m.level == LevelUnderAttack
}
