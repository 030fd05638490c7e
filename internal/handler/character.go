package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// CharEnum stores the character list, picks one and logs it in.
type CharEnum struct{}

func (CharEnum) Handle(ctx context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeCharEnum(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgCharEnum, err)
	}

	chars := make([]session.Character, 0, len(resp.Characters))
	for _, e := range resp.Characters {
		chars = append(chars, CharacterFromEntry(e))
	}
	if len(chars) == 0 {
		return nil, fatalf("no characters on this realm")
	}

	char, err := pickCharacter(ctx, in, chars)
	if err != nil {
		return nil, err
	}

	data, err := Send(protocol.PlayerLogin{GUID: char.GUID})
	if err != nil {
		return nil, err
	}
	return []Output{
		UpdateState{SetCharacters{Characters: chars}},
		UpdateState{SetActiveCharacter{Character: char}},
		data,
		Messagef("Character selected", "%s (level %d)", char.Name, char.Level),
	}, nil
}

func pickCharacter(ctx context.Context, in *Input, chars []session.Character) (session.Character, error) {
	if name := in.Session.Settings().CharacterName; name != "" {
		for _, c := range chars {
			if strings.EqualFold(c.Name, name) {
				return c, nil
			}
		}
		return session.Character{}, fatalf("character %q not found", name)
	}
	if len(chars) == 1 {
		return chars[0], nil
	}
	if in.Chooser == nil {
		return session.Character{}, fatalf("%w: %d characters and none configured", ErrNoSelection, len(chars))
	}

	names := make([]string, len(chars))
	for i, c := range chars {
		names[i] = c.Name
	}
	idx, err := in.Chooser.Choose(ctx, ChoiceRequest{Kind: ChoiceCharacter, Options: names})
	if err != nil {
		return session.Character{}, fmt.Errorf("character selection: %w", err)
	}
	if idx < 0 || idx >= len(chars) {
		return session.Character{}, fmt.Errorf("character selection out of range: %d", idx)
	}
	return chars[idx], nil
}

// CharacterFromEntry converts a character list entry.
func CharacterFromEntry(e protocol.CharEnumEntry) session.Character {
	return session.Character{
		GUID:     e.GUID,
		Name:     e.Name,
		Race:     e.Race,
		Class:    e.Class,
		Gender:   e.Gender,
		Level:    e.Level,
		Zone:     e.Zone,
		Map:      e.Map,
		Position: session.Position{X: e.X, Y: e.Y, Z: e.Z},
	}
}

// LoginVerifyWorld completes the world login and joins the configured
// channels.
type LoginVerifyWorld struct{}

func (LoginVerifyWorld) Handle(_ context.Context, in *Input) ([]Output, error) {
	verify, err := protocol.DecodeLoginVerifyWorld(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgLoginVerifyWorld, err)
	}

	out := []Output{UpdateState{SetInWorld{
		Position: session.Position{X: verify.X, Y: verify.Y, Z: verify.Z, O: verify.O},
		Map:      verify.Map,
	}}}
	for _, name := range in.Session.Settings().Channels.List() {
		data, err := Send(protocol.JoinChannel{Name: name})
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}

	name := "character"
	if c, ok := in.Session.ActiveCharacter(); ok {
		name = c.Name
	}
	return append(out, Messagef("Entered world", "%s on map %d", name, verify.Map)), nil
}
