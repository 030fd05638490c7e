// Package session holds the mutable state of one client connection. Every
// handler reaches it through a pointer; each method takes the lock for the
// duration of a single read or write and never across I/O.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
)

// Session is the connection-scoped state shared by the dispatch loop, the
// handlers and side tasks.
type Session struct {
	mu sync.Mutex

	settings Settings

	state          State
	stateChangedAt time.Time

	stateFlags  StateFlags
	actionFlags ActionFlags
	clientFlags ClientFlags

	sessionKey []byte
	proof      *crypto.LogonProof
	crypt      *crypto.Context
	warden     *crypto.WardenCipher

	realms        []Realm
	selectedRealm *Realm
	characters    []Character
	active        *Character
	names         map[uint64]string

	wardenModuleSize uint32
	wardenModuleRecv uint32

	pingSeq     uint32
	pingSentAt  time.Time
	latency     time.Duration
	lastInbound time.Time
}

// New creates a disconnected session.
func New(settings Settings) *Session {
	s := &Session{
		settings:       settings,
		state:          Disconnected,
		stateChangedAt: time.Now(),
		names:          make(map[uint64]string),
	}
	if settings.DebugPackets {
		s.clientFlags |= ClientDebugMode
	}
	return s
}

// Settings returns the read-only configuration view.
func (s *Session) Settings() Settings {
	return s.settings
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session along one edge of the state machine.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	if !CanTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	if to == Disconnected {
		s.resetLocked()
		return nil
	}
	if s.state != to {
		s.state = to
		s.stateChangedAt = time.Now()
	}
	return nil
}

// OnAuthConnected records a successful connect to the auth server.
func (s *Session) OnAuthConnected() error {
	return s.Transition(AuthHandshake)
}

// OnRealmConnected checks that a world connection follows a realm choice.
func (s *Session) OnRealmConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != RealmSelected {
		return transitionError(s.state, RealmSelected)
	}
	return nil
}

// SetSessionKey stores K once the logon proof has been accepted.
func (s *Session) SetSessionKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionKey = append([]byte(nil), key...)
	s.proof = nil
}

// SessionKey returns a copy of K, or nil before the logon proof succeeded.
func (s *Session) SessionKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionKey == nil {
		return nil
	}
	return append([]byte(nil), s.sessionKey...)
}

// SetPendingProof stores the client proof until the server answers it.
func (s *Session) SetPendingProof(p *crypto.LogonProof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proof = p
}

// PendingProof returns the proof awaiting the server's M2.
func (s *Session) PendingProof() *crypto.LogonProof {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proof
}

// ArmEncryption builds fresh header and anti-cheat ciphers from key (or
// the stored session key when key is empty) and moves to WorldEncrypted.
// Without any key it fails closed and leaves the session untouched.
func (s *Session) ArmEncryption(key []byte) (*crypto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(key) == 0 {
		key = s.sessionKey
	}
	if len(key) == 0 {
		return nil, crypto.ErrNoSessionKey
	}
	if !CanTransition(s.state, WorldEncrypted) {
		return nil, transitionError(s.state, WorldEncrypted)
	}

	ctx, err := crypto.NewContext(key, crypto.ClientSide)
	if err != nil {
		return nil, fmt.Errorf("failed to arm header encryption: %w", err)
	}
	warden, err := crypto.NewWardenCipher(key, crypto.ClientSide)
	if err != nil {
		return nil, fmt.Errorf("failed to arm warden cipher: %w", err)
	}

	s.sessionKey = append([]byte(nil), key...)
	s.crypt = ctx
	s.warden = warden
	s.wardenModuleSize, s.wardenModuleRecv = 0, 0
	s.clientFlags |= ClientConnectedToRealm
	if err := s.transitionLocked(WorldEncrypted); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Crypt returns the armed header cipher, or nil.
func (s *Session) Crypt() *crypto.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crypt
}

// Warden returns the armed anti-cheat cipher, or nil.
func (s *Session) Warden() *crypto.WardenCipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warden
}

// SetRealms replaces the realm list.
func (s *Session) SetRealms(realms []Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realms = append([]Realm(nil), realms...)
}

// Realms returns a copy of the realm list.
func (s *Session) Realms() []Realm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Realm(nil), s.realms...)
}

// FindRealm looks a realm up by case-insensitive name.
func (s *Session) FindRealm(name string) (Realm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.realms {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Realm{}, false
}

// SelectRealm records the realm to connect to and moves to RealmSelected.
// The address is validated first; a malformed one changes nothing.
func (s *Session) SelectRealm(r Realm) error {
	if _, _, err := r.Endpoint(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(RealmSelected); err != nil {
		return err
	}
	s.selectedRealm = &r
	return nil
}

// SelectedRealm returns the chosen realm.
func (s *Session) SelectedRealm() (Realm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedRealm == nil {
		return Realm{}, false
	}
	return *s.selectedRealm, true
}

// SetCharacters replaces the character list.
func (s *Session) SetCharacters(chars []Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = append([]Character(nil), chars...)
}

// Characters returns a copy of the character list.
func (s *Session) Characters() []Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Character(nil), s.characters...)
}

// FindCharacter looks a character up by case-insensitive name.
func (s *Session) FindCharacter(name string) (Character, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.characters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Character{}, false
}

// SetActiveCharacter records the character sent in CMSG_PLAYER_LOGIN.
func (s *Session) SetActiveCharacter(c Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &c
	s.names[c.GUID] = c.Name
}

// ActiveCharacter returns the character logging in or in the world.
func (s *Session) ActiveCharacter() (Character, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Character{}, false
	}
	return *s.active, true
}

// EnterWorld moves to InWorld once the server confirmed the login.
func (s *Session) EnterWorld(pos Position, mapID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(InWorld); err != nil {
		return err
	}
	s.stateFlags |= StateInWorld
	if s.active != nil {
		s.active.Position = pos
		s.active.Map = mapID
	}
	return nil
}

// SetLoggingOut marks a pending logout.
func (s *Session) SetLoggingOut(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.stateFlags |= StateLoggingOut
	} else {
		s.stateFlags &^= StateLoggingOut
	}
}

// StateFlags returns the current state flags.
func (s *Session) StateFlags() StateFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateFlags
}

// SetStateFlags sets or clears flags.
func (s *Session) SetStateFlags(f StateFlags, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.stateFlags |= f
	} else {
		s.stateFlags &^= f
	}
}

// ActionFlags returns the current action flags.
func (s *Session) ActionFlags() ActionFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actionFlags
}

// SetActionFlags sets or clears flags.
func (s *Session) SetActionFlags(f ActionFlags, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.actionFlags |= f
	} else {
		s.actionFlags &^= f
	}
}

// ClientFlags returns the current client flags.
func (s *Session) ClientFlags() ClientFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientFlags
}

// SetClientFlags sets or clears flags.
func (s *Session) SetClientFlags(f ClientFlags, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.clientFlags |= f
	} else {
		s.clientFlags &^= f
	}
}

// SetName caches a resolved player name.
func (s *Session) SetName(guid uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[guid] = name
}

// Name returns a cached player name.
func (s *Session) Name(guid uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[guid]
	return name, ok
}

// StartWardenModule records the size of a module the server is about to
// stream to us.
func (s *Session) StartWardenModule(size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wardenModuleSize = size
	s.wardenModuleRecv = 0
}

// AddWardenModuleChunk accounts n received module bytes and reports
// whether the module is complete.
func (s *Session) AddWardenModuleChunk(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wardenModuleRecv += uint32(n)
	return s.wardenModuleSize > 0 && s.wardenModuleRecv >= s.wardenModuleSize
}

// WardenModuleProgress returns the expected and received module sizes.
func (s *Session) WardenModuleProgress() (size, received uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wardenModuleSize, s.wardenModuleRecv
}

// NextPing allocates a ping sequence number and stamps the send time.
func (s *Session) NextPing(now time.Time) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingSeq++
	s.pingSentAt = now
	return s.pingSeq
}

// RecordPong matches a pong against the last ping and updates the latency.
func (s *Session) RecordPong(seq uint32, now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.pingSeq || s.pingSentAt.IsZero() {
		return 0, false
	}
	s.latency = now.Sub(s.pingSentAt)
	return s.latency, true
}

// Latency returns the last measured round trip.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latency
}

// TouchInbound stamps the arrival of a routed frame.
func (s *Session) TouchInbound(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInbound = now
}

// LastInbound returns when the last routed frame arrived.
func (s *Session) LastInbound() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInbound
}

// Reset drops every session-scoped secret and returns to Disconnected.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	for i := range s.sessionKey {
		s.sessionKey[i] = 0
	}
	s.sessionKey = nil
	s.proof = nil
	s.crypt = nil
	s.warden = nil
	s.stateFlags = StateNone
	s.actionFlags = ActionNone
	s.clientFlags = s.clientFlags & ClientDebugMode
	s.realms = nil
	s.selectedRealm = nil
	s.characters = nil
	s.active = nil
	s.wardenModuleSize, s.wardenModuleRecv = 0, 0
	s.pingSeq = 0
	s.pingSentAt = time.Time{}
	s.lastInbound = time.Time{}
	if s.state != Disconnected {
		s.state = Disconnected
		s.stateChangedAt = time.Now()
	}
}

// Snapshot is a point-in-time copy for status displays.
type Snapshot struct {
	State          State         `json:"state"`
	StateChangedAt time.Time     `json:"state_changed_at"`
	StateFlags     string        `json:"state_flags"`
	ClientFlags    string        `json:"client_flags"`
	Realm          string        `json:"realm,omitempty"`
	Character      string        `json:"character,omitempty"`
	RealmCount     int           `json:"realm_count"`
	CharacterCount int           `json:"character_count"`
	Encrypted      bool          `json:"encrypted"`
	Latency        time.Duration `json:"latency_ns"`
	LastInbound    time.Time     `json:"last_inbound"`
}

// Snapshot copies the fields status displays need.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:          s.state,
		StateChangedAt: s.stateChangedAt,
		StateFlags:     s.stateFlags.String(),
		ClientFlags:    s.clientFlags.String(),
		RealmCount:     len(s.realms),
		CharacterCount: len(s.characters),
		Encrypted:      s.crypt != nil,
		Latency:        s.latency,
		LastInbound:    s.lastInbound,
	}
	if s.selectedRealm != nil {
		snap.Realm = s.selectedRealm.Name
	}
	if s.active != nil {
		snap.Character = s.active.Name
	}
	return snap
}
