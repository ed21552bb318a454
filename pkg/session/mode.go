// Package session holds per-conversation state: the persona mode chosen for
// a room, the instructions that go with it, and a cache of the latest budget
// graph and transcript behind a pluggable storage port.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Mode selects the assistant persona for a conversation.
type Mode string

const (
	ModeUnset     Mode = ""
	ModeBudgeting Mode = "budgeting"
	ModeHotline   Mode = "hotline"
)

func (m Mode) String() string {
	if m == ModeUnset {
		return "unset"
	}
	return string(m)
}

// ModeFromRoomName derives the mode from the suffix the token server appends
// to room names, e.g. "calmcall_4f2a_budgeting".
func ModeFromRoomName(name string) Mode {
	switch {
	case strings.HasSuffix(name, "_"+string(ModeBudgeting)):
		return ModeBudgeting
	case strings.HasSuffix(name, "_"+string(ModeHotline)):
		return ModeHotline
	default:
		return ModeUnset
	}
}

// ParseMode parses a user-supplied mode. The empty string is ModeUnset.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeUnset:
		return ModeUnset, nil
	case ModeBudgeting:
		return ModeBudgeting, nil
	case ModeHotline:
		return ModeHotline, nil
	default:
		return ModeUnset, fmt.Errorf("unknown session mode %q", s)
	}
}

// RoomName builds a room name that carries mode as its suffix.
func RoomName(prefix string, mode Mode) string {
	if mode == ModeUnset {
		return prefix
	}
	return prefix + "_" + string(mode)
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}
