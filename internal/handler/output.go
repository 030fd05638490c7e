// Package handler implements one unit of logic per opcode. Handlers never
// touch the socket: they return an ordered list of outputs that the dispatch
// loop applies, so every outbound byte passes the header cipher exactly once.
package handler

import (
	"fmt"
	"time"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// Output is one effect requested by a handler.
type Output interface {
	outputKind() string
}

// Kind returns the variant name of an output for logs and events.
func Kind(o Output) string {
	return o.outputKind()
}

// Data asks the loop to send a packet.
type Data struct {
	Packet protocol.Packet
}

// UpdateState asks the loop to apply a session mutation.
type UpdateState struct {
	Update Update
}

// ConnectionRequest asks the transport to reconnect to a realm.
type ConnectionRequest struct {
	Host string
	Port uint16
}

// ResponseMessage is a fire-and-forget event for logs and UIs.
type ResponseMessage struct {
	Label  string
	Detail *string
}

// ChoiceKind identifies what a ChoiceRequest selects.
type ChoiceKind string

const (
	ChoiceRealm     ChoiceKind = "realm"
	ChoiceCharacter ChoiceKind = "character"
)

// ChoiceRequest asks an external selector to pick one of Options.
type ChoiceRequest struct {
	Kind    ChoiceKind
	Options []string
}

// ChatMessage is a decoded chat line, published for the journal, scripts
// and notifications.
type ChatMessage struct {
	Type       protocol.ChatType
	Channel    string
	SenderGUID uint64
	Sender     string
	Text       string
	Language   uint32
	ReceivedAt time.Time
}

// ExitConfirmed ends the session gracefully.
type ExitConfirmed struct {
	Reason string
}

// Void has no effect.
type Void struct{}

func (Data) outputKind() string              { return "data" }
func (UpdateState) outputKind() string       { return "update_state" }
func (ConnectionRequest) outputKind() string { return "connection_request" }
func (ResponseMessage) outputKind() string   { return "response_message" }
func (ChoiceRequest) outputKind() string     { return "choice_request" }
func (ChatMessage) outputKind() string       { return "chat_message" }
func (ExitConfirmed) outputKind() string     { return "exit_confirmed" }
func (Void) outputKind() string              { return "void" }

// Message builds a ResponseMessage with an optional detail.
func Message(label string, detail ...string) ResponseMessage {
	m := ResponseMessage{Label: label}
	if len(detail) > 0 {
		d := detail[0]
		m.Detail = &d
	}
	return m
}

// Messagef builds a ResponseMessage whose detail is formatted.
func Messagef(label, format string, args ...any) ResponseMessage {
	return Message(label, fmt.Sprintf(format, args...))
}

// Send encodes msg into a Data output.
func Send(msg protocol.Message) (Data, error) {
	pkt, err := msg.Packet()
	if err != nil {
		return Data{}, err
	}
	return Data{Packet: pkt}, nil
}

// Update is a single session mutation.
type Update interface {
	Apply(s *session.Session) error
}

// SetSessionKey stores K after the logon proof.
type SetSessionKey struct{ Key []byte }

// SetPendingProof stores the client proof until the server answers.
type SetPendingProof struct{ Proof *crypto.LogonProof }

// SetEncryption arms (or re-arms) the header cipher from Key.
type SetEncryption struct{ Key []byte }

// SetConnectedToRealm marks the world connection as established.
type SetConnectedToRealm struct{}

// SetRealms replaces the realm list.
type SetRealms struct{ Realms []session.Realm }

// SelectRealm records the chosen realm.
type SelectRealm struct{ Realm session.Realm }

// SetCharacters replaces the character list.
type SetCharacters struct{ Characters []session.Character }

// SetActiveCharacter records the character logging in.
type SetActiveCharacter struct{ Character session.Character }

// SetInWorld completes the login.
type SetInWorld struct {
	Position session.Position
	Map      uint32
}

// SetLoggingOut marks or clears a pending logout.
type SetLoggingOut struct{ Value bool }

// SetName caches a player name.
type SetName struct {
	GUID uint64
	Name string
}

// RecordPong closes a ping round trip.
type RecordPong struct {
	Sequence uint32
	At       time.Time
}

// StartWardenModule begins tracking a streamed anti-cheat module.
type StartWardenModule struct{ Size uint32 }

// WardenModuleChunk accounts received module bytes.
type WardenModuleChunk struct{ Size int }

func (u SetSessionKey) Apply(s *session.Session) error {
	s.SetSessionKey(u.Key)
	return nil
}

func (u SetPendingProof) Apply(s *session.Session) error {
	s.SetPendingProof(u.Proof)
	return nil
}

func (u SetEncryption) Apply(s *session.Session) error {
	_, err := s.ArmEncryption(u.Key)
	return err
}

func (SetConnectedToRealm) Apply(s *session.Session) error {
	s.SetClientFlags(session.ClientConnectedToRealm, true)
	return nil
}

func (u SetRealms) Apply(s *session.Session) error {
	s.SetRealms(u.Realms)
	return nil
}

func (u SelectRealm) Apply(s *session.Session) error {
	return s.SelectRealm(u.Realm)
}

func (u SetCharacters) Apply(s *session.Session) error {
	s.SetCharacters(u.Characters)
	return nil
}

func (u SetActiveCharacter) Apply(s *session.Session) error {
	s.SetActiveCharacter(u.Character)
	return nil
}

func (u SetInWorld) Apply(s *session.Session) error {
	return s.EnterWorld(u.Position, u.Map)
}

func (u SetLoggingOut) Apply(s *session.Session) error {
	s.SetLoggingOut(u.Value)
	return nil
}

func (u SetName) Apply(s *session.Session) error {
	s.SetName(u.GUID, u.Name)
	return nil
}

func (u RecordPong) Apply(s *session.Session) error {
	s.RecordPong(u.Sequence, u.At)
	return nil
}

func (u StartWardenModule) Apply(s *session.Session) error {
	s.StartWardenModule(u.Size)
	return nil
}

func (u WardenModuleChunk) Apply(s *session.Session) error {
	s.AddWardenModuleChunk(u.Size)
	return nil
}
