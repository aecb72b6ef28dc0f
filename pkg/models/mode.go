package models

import (
	"fmt"
	"strings"
)

// BackendMode selects which backend serves gateway operations.
type BackendMode int32

const (
	ModeReal BackendMode = iota
	ModeSimulated
)

// Backend names reported on results.
const (
	BackendReal      = "real"
	BackendSimulator = "simulator"
)

func (m BackendMode) String() string {
	switch m {
	case ModeReal:
		return "real"
	case ModeSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("BackendMode(%d)", int32(m))
	}
}

// MarshalText renders the mode as its lower-case name.
func (m BackendMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts any name understood by ParseMode.
func (m *BackendMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a configured mode name. "mock" is accepted as an alias for
// the simulated backend.
func ParseMode(s string) (BackendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "real":
		return ModeReal, nil
	case "simulated", "simulator", "mock":
		return ModeSimulated, nil
	default:
		return ModeReal, fmt.Errorf("unknown backend mode %q (use real or mock)", s)
	}
}
