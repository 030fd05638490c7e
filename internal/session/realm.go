package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedAddress is a configuration error: the realm cannot be
// reached and retrying will not help.
var ErrMalformedAddress = errors.New("malformed realm address")

// Realm is one entry of the last realm list. It is never modified after
// the list is received.
type Realm struct {
	ID         uint8   `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Icon       uint8   `json:"icon"`
	Locked     bool    `json:"locked"`
	Flags      uint8   `json:"flags"`
	Population float32 `json:"population"`
	Characters uint8   `json:"characters"`
	Timezone   uint8   `json:"timezone"`
}

// Endpoint splits the realm address into host and port.
func (r Realm) Endpoint() (string, uint16, error) {
	return ParseRealmAddress(r.Address)
}

// ParseRealmAddress splits "host:port" on the last separator.
func ParseRealmAddress(addr string) (string, uint16, error) {
	idx := strings.LastIndex(addr, ":")
	if idx <= 0 || idx == len(addr)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedAddress, addr)
	}
	host := strings.TrimSpace(addr[:idx])
	if host == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedAddress, addr)
	}
	port, err := strconv.ParseUint(addr[idx+1:], 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("%w: %q: invalid port", ErrMalformedAddress, addr)
	}
	return host, uint16(port), nil
}

// Position is a point in the world with facing.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	O float32 `json:"o"`
}

// Character is one entry of the last character list.
type Character struct {
	GUID     uint64   `json:"guid"`
	Name     string   `json:"name"`
	Race     uint8    `json:"race"`
	Class    uint8    `json:"class"`
	Gender   uint8    `json:"gender"`
	Level    uint8    `json:"level"`
	Zone     uint32   `json:"zone"`
	Map      uint32   `json:"map"`
	Position Position `json:"position"`
}

// ChannelLabels are the channel names joined after entering the world.
type ChannelLabels struct {
	Trade        string
	LFG          string
	LocalDefense string
	General      string
}

// List returns the configured labels in join order, skipping empty ones.
func (c ChannelLabels) List() []string {
	var out []string
	for _, name := range []string{c.General, c.Trade, c.LocalDefense, c.LFG} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Settings is the read-only view of the configuration the protocol
// engine needs.
type Settings struct {
	Account       string
	Password      string
	RealmName     string
	CharacterName string
	Channels      ChannelLabels
	WardenEnabled bool
	DebugPackets  bool
}
