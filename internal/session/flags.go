package session

import "strings"

// StateFlags track in-world conditions of the character.
type StateFlags uint32

const (
	StateInParty StateFlags = 1 << iota
	StateMovementStarted
	StateInWorld
	StateLoggingOut

	StateNone StateFlags = 0
)

// ActionFlags track what the character is currently doing.
type ActionFlags uint32

const (
	ActionCasting ActionFlags = 1 << iota
	ActionFollowing
	ActionMoving

	ActionNone ActionFlags = 0
)

// ClientFlags track connection and debugging modes.
type ClientFlags uint32

const (
	ClientConnectedToRealm ClientFlags = 1 << iota
	ClientDebugMode
	ClientFrozenMode

	ClientNone ClientFlags = 0
)

func (f StateFlags) Has(b StateFlags) bool   { return f&b == b }
func (f ActionFlags) Has(b ActionFlags) bool { return f&b == b }
func (f ClientFlags) Has(b ClientFlags) bool { return f&b == b }

var stateFlagNames = []struct {
	flag StateFlags
	name string
}{
	{StateInParty, "in_party"},
	{StateMovementStarted, "movement_started"},
	{StateInWorld, "in_world"},
	{StateLoggingOut, "logging_out"},
}

func (f StateFlags) String() string {
	var names []string
	for _, n := range stateFlagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

var clientFlagNames = []struct {
	flag ClientFlags
	name string
}{
	{ClientConnectedToRealm, "connected_to_realm"},
	{ClientDebugMode, "debug"},
	{ClientFrozenMode, "frozen"},
}

func (f ClientFlags) String() string {
	var names []string
	for _, n := range clientFlagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
