package junos

import "regexp"

// Mode selects how the candidate configuration is shared while it is open.
type Mode string

// Supported configuration modes.
const (
	ModeExclusive Mode = "exclusive"
	ModePrivate   Mode = "private"
	ModeShared    Mode = "shared"
)

var reElementName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Resolve delivers the mode to request from the device; the empty mode is shared.
func (m Mode) Resolve() Mode {
	if m == "" {
		return ModeShared
	}
	return m
}

// Verified reports whether the mode is one of the supported modes.
// Other modes are passed to the device as they are.
func (m Mode) Verified() bool {
	switch m.Resolve() {
	case ModeExclusive, ModePrivate, ModeShared:
		return true
	}
	return false
}

func (m Mode) valid() bool {
	return reElementName.MatchString(string(m.Resolve()))
}

// State is the lifecycle state of a ConfigSession.
type State int

// Configuration session states.
const (
	Closed State = iota
	Open
	Committed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case Committed:
		return "Committed"
	}
	return "Unknown"
}
