// Package processor maps inbound opcodes to the handlers that answer them.
// Every sub-protocol owns one table and one Processor; the dispatch loop
// asks each registered processor in turn and runs whatever comes back.
package processor

import (
	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/handler"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// Session is the read side of the session a processor may consult.
type Session interface {
	Settings() session.Settings
	Warden() *crypto.WardenCipher
}

// Entry binds a handler to the session states it accepts.
type Entry struct {
	Name   string
	New    func() handler.Handler
	States []session.State
}

// Accepts reports whether the handler may run in state s.
func (e Entry) Accepts(s session.State) bool {
	for _, st := range e.States {
		if st == s {
			return true
		}
	}
	return false
}

// Processor routes one packet. It is stateless; an unknown opcode yields nil.
type Processor interface {
	Name() string
	Process(pkt protocol.Packet, sess Session) []Entry
}

// Default returns the processors in dispatch order.
func Default() []Processor {
	return []Processor{LoginProcessor{}, CoreProcessor{}, WardenProcessor{}, TradeProcessor{}}
}

// Route concatenates the entries of all processors for pkt.
func Route(procs []Processor, pkt protocol.Packet, sess Session) []Entry {
	var out []Entry
	for _, p := range procs {
		out = append(out, p.Process(pkt, sess)...)
	}
	return out
}

func entry(name string, h handler.Handler, states ...session.State) Entry {
	return Entry{
		Name:   name,
		New:    func() handler.Handler { return h },
		States: states,
	}
}

var (
	handshake = []session.State{session.AuthHandshake}
	encrypted = []session.State{session.WorldEncrypted}
	world     = []session.State{session.WorldEncrypted, session.InWorld}
	inWorld   = []session.State{session.InWorld}
)

var loginTable = map[protocol.LoginOpcode]Entry{
	protocol.CmdAuthLogonChallenge: entry("logon_challenge", handler.LogonChallenge{}, handshake...),
	protocol.CmdAuthLogonProof:     entry("logon_proof", handler.LogonProof{}, handshake...),
	protocol.CmdRealmList:          entry("realm_list", handler.RealmList{}, handshake...),
}

var coreTable = map[protocol.WorldOpcode]Entry{
	protocol.SmsgAuthChallenge:     entry("auth_challenge", handler.AuthChallenge{}, session.RealmSelected),
	protocol.SmsgAuthResponse:      entry("auth_response", handler.AuthResponse{}, encrypted...),
	protocol.SmsgCharEnum:          entry("char_enum", handler.CharEnum{}, encrypted...),
	protocol.SmsgLoginVerifyWorld:  entry("login_verify_world", handler.LoginVerifyWorld{}, encrypted...),
	protocol.SmsgRealmSplit:        entry("realm_split", handler.RealmSplit{}, world...),
	protocol.SmsgTimeSyncReq:       entry("time_sync", handler.TimeSync{}, world...),
	protocol.SmsgPong:              entry("pong", handler.Pong{}, world...),
	protocol.SmsgNameQueryResponse: entry("name_query_response", handler.NameQueryResponse{}, world...),
	protocol.SmsgMessageChat:       entry("message_chat", handler.MessageChat{}, inWorld...),
	protocol.SmsgLogoutResponse:    entry("logout_response", handler.LogoutResponse{}, inWorld...),
	protocol.SmsgLogoutComplete:    entry("logout_complete", handler.LogoutComplete{}, world...),
}

var wardenTable = map[protocol.WardenServerOpcode]Entry{
	protocol.WardenSmsgModuleUse:   entry("warden_module_use", handler.WardenModuleUse{}, world...),
	protocol.WardenSmsgModuleCache: entry("warden_module_cache", handler.WardenModuleCache{}, world...),
	protocol.WardenSmsgCheatChecks: entry("warden_cheat_checks", handler.WardenCheatChecks{}, world...),
	protocol.WardenSmsgMemChecks:   entry("warden_mem_checks", handler.WardenMemChecks{}, world...),
	protocol.WardenSmsgHashRequest: entry("warden_hash_request", handler.WardenHashRequest{}, world...),
}

var wardenDiscard = entry("warden_discard", handler.WardenDiscard{}, world...)

// tradeTable is empty until trading is implemented; the processor is
// registered so new entries only need adding here.
var tradeTable = map[protocol.WorldOpcode]Entry{}

// LoginProcessor routes the auth server packets.
type LoginProcessor struct{}

func (LoginProcessor) Name() string { return "login" }

func (LoginProcessor) Process(pkt protocol.Packet, _ Session) []Entry {
	if pkt.Space != protocol.LoginSpace {
		return nil
	}
	if e, ok := loginTable[pkt.LoginOpcode()]; ok {
		return []Entry{e}
	}
	return nil
}

// CoreProcessor routes the realm server packets of the login and chat flow.
type CoreProcessor struct{}

func (CoreProcessor) Name() string { return "core" }

func (CoreProcessor) Process(pkt protocol.Packet, _ Session) []Entry {
	if pkt.Space != protocol.WorldSpace {
		return nil
	}
	if e, ok := coreTable[pkt.WorldOpcode()]; ok {
		return []Entry{e}
	}
	return nil
}

// WardenProcessor routes SMSG_WARDEN_DATA by its encrypted sub-opcode.
// Payloads with an unknown sub-opcode still get a handler so the inbound
// keystream is consumed.
type WardenProcessor struct{}

func (WardenProcessor) Name() string { return "warden" }

func (WardenProcessor) Process(pkt protocol.Packet, sess Session) []Entry {
	if pkt.Space != protocol.WorldSpace || pkt.WorldOpcode() != protocol.SmsgWardenData {
		return nil
	}
	if !sess.Settings().WardenEnabled {
		return nil
	}
	w := sess.Warden()
	if w == nil || len(pkt.Body) == 0 {
		return nil
	}
	sub := protocol.WardenServerOpcode(w.Peek(pkt.Body, 1)[0])
	if e, ok := wardenTable[sub]; ok {
		return []Entry{e}
	}
	return []Entry{wardenDiscard}
}

// TradeProcessor routes trade window packets.
type TradeProcessor struct{}

func (TradeProcessor) Name() string { return "trade" }

func (TradeProcessor) Process(pkt protocol.Packet, _ Session) []Entry {
	if pkt.Space != protocol.WorldSpace {
		return nil
	}
	if e, ok := tradeTable[pkt.WorldOpcode()]; ok {
		return []Entry{e}
	}
	return nil
}
