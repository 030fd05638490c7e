package session

import (
	"errors"
	"fmt"
)

// State is the position of a connection in the login sequence.
type State int

const (
	Disconnected State = iota
	AuthHandshake
	RealmSelected
	WorldEncrypted
	InWorld
)

var stateNames = map[State]string{
	Disconnected:   "disconnected",
	AuthHandshake:  "auth_handshake",
	RealmSelected:  "realm_selected",
	WorldEncrypted: "world_encrypted",
	InWorld:        "in_world",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalJSON serializes State as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ErrIllegalTransition is returned for an edge the state machine does not have.
var ErrIllegalTransition = errors.New("illegal state transition")

// transitions lists the legal forward edges. Every state may also fall
// back to Disconnected.
var transitions = map[State][]State{
	Disconnected:   {AuthHandshake},
	AuthHandshake:  {RealmSelected},
	RealmSelected:  {WorldEncrypted},
	WorldEncrypted: {WorldEncrypted, InWorld},
	InWorld:        {},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to State) bool {
	if to == Disconnected {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
