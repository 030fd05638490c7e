package connector

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/handler"
	"github.com/realmwalker-project/realmwalker/internal/network"
	"github.com/realmwalker-project/realmwalker/internal/processor"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// fakeTransport replays scripted inbound packets and records writes.
type fakeTransport struct {
	mu         sync.Mutex
	inbox      chan protocol.Packet
	closed     chan struct{}
	connects   []protocol.Space
	connectErr error
	writes     []protocol.Packet
	ciphers    int
	// ops records writes and cipher changes in call order.
	ops        []string
}

func newFakeTransport(inbound ...protocol.Packet) *fakeTransport {
	inbox := make(chan protocol.Packet, len(inbound)+1)
	for _, p := range inbound {
		inbox <- p
	}
	return &fakeTransport{inbox: inbox}
}

func (f *fakeTransport) Connect(_ context.Context, _ string, _ uint16, space protocol.Space) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, space)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.closed = make(chan struct{})
	return nil
}

func (f *fakeTransport) ReadPacket() (protocol.Packet, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed == nil {
		return protocol.Packet{}, network.ErrNotConnected
	}
	select {
	case p := <-f.inbox:
		return p, nil
	case <-closed:
		return protocol.Packet{}, network.ErrNotConnected
	}
}

func (f *fakeTransport) WritePacket(pkt protocol.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed == nil {
		return network.ErrNotConnected
	}
	f.writes = append(f.writes, pkt)
	f.ops = append(f.ops, "write "+pkt.OpcodeName())
	return nil
}

func (f *fakeTransport) SetCipher(*crypto.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ciphers++
	f.ops = append(f.ops, "set_cipher")
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed != nil {
		close(f.closed)
		f.closed = nil
	}
	return nil
}

func (f *fakeTransport) written() []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Packet(nil), f.writes...)
}

func (f *fakeTransport) calls() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...), f.ciphers
}

// keyProcessor stores a session key on the first login packet and then
// signals the test.
type keyProcessor struct{ keyed chan struct{} }

func (keyProcessor) Name() string { return "key" }

func (p keyProcessor) Process(pkt protocol.Packet, _ processor.Session) []processor.Entry {
	if pkt.Space != protocol.LoginSpace {
		return nil
	}
	return []processor.Entry{{
		Name:   "store_key",
		States: []session.State{session.AuthHandshake},
		New: func() handler.Handler {
			return handler.Func(func(_ context.Context, in *handler.Input) ([]handler.Output, error) {
				in.Session.SetSessionKey([]byte{1, 2, 3})
				close(p.keyed)
				return nil, nil
			})
		},
	}}
}

func testOptions() Options {
	return Options{
		AuthHost: "127.0.0.1",
		AuthPort: 3724,
		Reconnect: ReconnectPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

func rejectedChallenge(t *testing.T) protocol.Packet {
	t.Helper()
	body, err := protocol.LogonChallengeResponse{Result: protocol.AuthFailUnknownAccount}.Encode()
	require.NoError(t, err)
	return protocol.NewLoginPacket(protocol.CmdAuthLogonChallenge, body)
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestRunStopsOnFatalError(t *testing.T) {
	tr := newFakeTransport(rejectedChallenge(t))
	bc := events.NewBroadcast(64)
	sub, cancel := bc.Subscribe("test")
	defer cancel()

	c := NewClient(testOptions(), session.New(session.Settings{Account: "player"}), tr, nil, bc)
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, handler.ErrFatal)

	writes := tr.written()
	require.Len(t, writes, 1)
	assert.Equal(t, protocol.CmdAuthLogonChallenge, writes[0].LoginOpcode())
	assert.Equal(t, []protocol.Space{protocol.LoginSpace}, tr.connects)

	evs := drain(sub)
	assert.Contains(t, eventTypes(evs), events.EventConnected)
	last := evs[len(evs)-1]
	require.Equal(t, events.EventDisconnected, last.Type)
	p := last.Payload.(events.DisconnectedPayload)
	assert.True(t, p.Fatal)
	assert.Equal(t, c.RunID(), p.RunID)
	assert.Equal(t, "PLAYER", evs[0].Payload.(events.ConnectedPayload).Account)
}

func TestUnknownAndOutOfStatePacketsAreIgnored(t *testing.T) {
	tr := newFakeTransport(
		protocol.NewLoginPacket(protocol.LoginOpcode(0x32), []byte{1, 2, 3}),
		protocol.NewWorldPacket(protocol.SmsgPong, []byte{1, 0, 0, 0}),
		rejectedChallenge(t),
	)
	sess := session.New(session.Settings{Account: "player"})
	c := NewClient(testOptions(), sess, tr, nil, nil)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, handler.ErrFatal)

	assert.Len(t, tr.written(), 1)
	assert.Equal(t, session.Disconnected, sess.State())
	assert.Nil(t, sess.SessionKey())
	assert.Empty(t, sess.Realms())
	assert.Zero(t, sess.Latency())
}

func TestUnroutedPacketLeavesSessionUntouched(t *testing.T) {
	sess := session.New(session.Settings{Account: "player"})
	require.NoError(t, sess.OnAuthConnected())
	before := sess.Snapshot()

	c := NewClient(testOptions(), sess, newFakeTransport(), nil, nil)
	require.NoError(t, c.handle(context.Background(), protocol.NewLoginPacket(protocol.LoginOpcode(0x32), []byte{1, 2, 3})))

	assert.Equal(t, before, sess.Snapshot())
	assert.True(t, sess.LastInbound().IsZero())
}

func TestTransportErrorResetsSessionBeforeBackoff(t *testing.T) {
	tr := newFakeTransport(protocol.NewLoginPacket(protocol.CmdAuthLogonChallenge, nil))
	bc := events.NewBroadcast(64)
	sub, unsubscribe := bc.Subscribe("test")
	defer unsubscribe()

	opts := testOptions()
	opts.Reconnect = ReconnectPolicy{InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	sess := session.New(session.Settings{Account: "player"})
	c := NewClient(opts, sess, tr, nil, bc)
	keyed := make(chan struct{})
	c.processors = []processor.Processor{keyProcessor{keyed: keyed}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-keyed
	require.NoError(t, tr.Close())

	for ev := range sub {
		if ev.Type == events.EventDisconnected {
			break
		}
	}
	// Run is now waiting out the reconnect delay.
	assert.Equal(t, session.Disconnected, sess.State())
	assert.Nil(t, sess.SessionKey())
	assert.Nil(t, sess.Crypt())
	assert.Equal(t, session.StateNone, sess.StateFlags())

	cancel()
	assert.NoError(t, <-done)
}

func TestAuthChallengeArmsTransportBeforeNextPacket(t *testing.T) {
	ctx := context.Background()
	tr := newFakeTransport()
	require.NoError(t, tr.Connect(ctx, "", 0, protocol.WorldSpace))

	sess := session.New(session.Settings{Account: "player"})
	require.NoError(t, sess.OnAuthConnected())
	sess.SetSessionKey(bytes.Repeat([]byte{0x11}, crypto.SessionKeySize))
	require.NoError(t, sess.SelectRealm(session.Realm{ID: 1, Name: "Azeroth", Address: "127.0.0.1:8085"}))

	c := NewClient(testOptions(), sess, tr, nil, nil)
	c.rand = bytes.NewReader([]byte{1, 2, 3, 4})

	body, err := protocol.AuthChallenge{One: 1, ServerSeed: 0xDEADBEEF}.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handle(ctx, protocol.NewWorldPacket(protocol.SmsgAuthChallenge, body)))

	// CMSG_AUTH_SESSION leaves in plaintext, then the cipher is armed.
	ops, ciphers := tr.calls()
	assert.Equal(t, []string{"write CMSG_AUTH_SESSION", "set_cipher"}, ops)
	assert.Equal(t, 1, ciphers)
	assert.Equal(t, session.WorldEncrypted, sess.State())
	assert.NotNil(t, sess.Crypt())

	// The next frame is routed against the encrypted state.
	require.NoError(t, c.handle(ctx, protocol.NewWorldPacket(protocol.SmsgPong, []byte{0, 0, 0, 0})))
	assert.False(t, sess.LastInbound().IsZero())
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = errors.New("connection refused")

	c := NewClient(testOptions(), session.New(session.Settings{Account: "player"}), tr, nil, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.NotErrorIs(t, err, handler.ErrFatal)
	assert.Len(t, tr.connects, 3)
}

func TestRunReturnsNilWhenCancelled(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient(testOptions(), session.New(session.Settings{Account: "player"}), tr, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.Status().Running }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.Status().Running)
}

func TestApplyFinishesOutputsBeforeExit(t *testing.T) {
	tr := newFakeTransport()
	require.NoError(t, tr.Connect(context.Background(), "", 0, protocol.WorldSpace))
	c := NewClient(testOptions(), session.New(session.Settings{}), tr, nil, nil)

	pkt := protocol.NewWorldPacket(protocol.CmsgPing, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	err := c.apply(context.Background(), []handler.Output{
		handler.Message("Logged out"),
		handler.ExitConfirmed{Reason: "logout complete"},
		handler.Data{Packet: pkt},
	})
	assert.ErrorIs(t, err, errExit)
	assert.Len(t, tr.written(), 1)
}

func TestApplyPublishesSnapshots(t *testing.T) {
	bc := events.NewBroadcast(8)
	sub, cancel := bc.Subscribe("test")
	defer cancel()

	sess := session.New(session.Settings{})
	c := NewClient(testOptions(), sess, newFakeTransport(), nil, bc)

	realms := []session.Realm{{ID: 1, Name: "Azeroth", Address: "127.0.0.1:8085", Characters: 2}}
	require.NoError(t, c.apply(context.Background(), []handler.Output{
		handler.UpdateState{Update: handler.SetRealms{Realms: realms}},
		handler.ChatMessage{Type: protocol.ChatSay, Sender: "Thrall", Text: "hi"},
	}))

	assert.Equal(t, realms, sess.Realms())
	evs := drain(sub)
	require.Equal(t, []events.EventType{events.EventRealmList, events.EventChat}, eventTypes(evs))
	assert.Equal(t, "Azeroth", evs[0].Payload.([]events.RealmPayload)[0].Name)
	assert.Equal(t, "say", evs[1].Payload.(events.ChatPayload).Type)
}

func TestSayRequiresWorld(t *testing.T) {
	c := NewClient(testOptions(), session.New(session.Settings{}), newFakeTransport(), nil, nil)
	assert.ErrorIs(t, c.Say(context.Background(), protocol.ChatSay, "", "hello"), ErrNotInWorld)
	assert.ErrorIs(t, c.Logout(), ErrNotInWorld)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultConfig())
	assert.Equal(t, uint16(config.DefaultAuthPort), opts.AuthPort)
	assert.Equal(t, 30*time.Second, opts.Keepalive)
	assert.Equal(t, DefaultReconnectPolicy(), opts.Reconnect)
}

func TestReconnectPolicy(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(0))

	transient := errors.New("eof")
	assert.True(t, p.ShouldRetry(3, transient))
	assert.False(t, p.ShouldRetry(4, transient))
	assert.False(t, p.ShouldRetry(1, handler.ErrFatal))

	forever := ReconnectPolicy{InitialDelay: time.Second}
	assert.True(t, forever.ShouldRetry(1000, transient))
	assert.Equal(t, time.Second, forever.Delay(10))
}

func TestSelector(t *testing.T) {
	published := make(chan handler.ChoiceRequest, 1)
	s := NewSelector(func(req handler.ChoiceRequest) { published <- req })

	assert.ErrorIs(t, s.SelectRealm("Azeroth"), ErrNoPendingChoice)

	req := handler.ChoiceRequest{Kind: handler.ChoiceRealm, Options: []string{"Azeroth", "Outland"}}
	got := make(chan int, 1)
	go func() {
		idx, err := s.Choose(context.Background(), req)
		if err == nil {
			got <- idx
		}
	}()

	assert.Equal(t, req, <-published)
	pending, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, handler.ChoiceRealm, pending.Kind)

	assert.ErrorIs(t, s.SelectCharacter("Thrall"), ErrNoPendingChoice)
	assert.ErrorIs(t, s.SelectRealm("Northrend"), ErrUnknownOption)
	require.NoError(t, s.SelectRealm("outland"))
	assert.Equal(t, 1, <-got)

	_, ok = s.Pending()
	assert.False(t, ok)
}

func TestSelectorByNumberAndCancel(t *testing.T) {
	s := NewSelector(nil)
	req := handler.ChoiceRequest{Kind: handler.ChoiceCharacter, Options: []string{"Thrall", "Jaina"}}

	got := make(chan int, 1)
	go func() {
		idx, _ := s.Choose(context.Background(), req)
		got <- idx
	}()
	require.Eventually(t, func() bool { _, ok := s.Pending(); return ok }, time.Second, time.Millisecond)
	require.NoError(t, s.SelectCharacter("2"))
	assert.Equal(t, 1, <-got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Choose(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}
