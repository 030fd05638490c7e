package handler

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

var (
	testKey   = bytes.Repeat([]byte{0x3C}, crypto.SessionKeySize)
	testRealm = session.Realm{ID: 1, Name: "Azeroth", Address: "127.0.0.1:8085"}
)

type fixedChooser struct {
	idx  int
	seen []ChoiceRequest
}

func (c *fixedChooser) Choose(_ context.Context, req ChoiceRequest) (int, error) {
	c.seen = append(c.seen, req)
	return c.idx, nil
}

type echoHook struct{ calls int }

func (h *echoHook) OnChat(_ context.Context, msg ChatMessage) (string, bool, error) {
	h.calls++
	return "echo: " + msg.Text, true, nil
}

func loginSession(t *testing.T, settings session.Settings) *session.Session {
	t.Helper()
	s := session.New(settings)
	require.NoError(t, s.OnAuthConnected())
	return s
}

func armedSession(t *testing.T, settings session.Settings) *session.Session {
	t.Helper()
	s := loginSession(t, settings)
	s.SetSessionKey(testKey)
	require.NoError(t, s.SelectRealm(testRealm))
	_, err := s.ArmEncryption(nil)
	require.NoError(t, err)
	return s
}

func worldPacket(op protocol.WorldOpcode, body []byte) protocol.Packet {
	return protocol.Packet{Space: protocol.WorldSpace, Opcode: uint32(op), Body: body}
}

func loginPacket(op protocol.LoginOpcode, body []byte) protocol.Packet {
	return protocol.Packet{Space: protocol.LoginSpace, Opcode: uint32(op), Body: body}
}

func encode(t *testing.T, m interface{ Encode() ([]byte, error) }) []byte {
	t.Helper()
	body, err := m.Encode()
	require.NoError(t, err)
	return body
}

func dataOutputs(out []Output) []protocol.Packet {
	var pkts []protocol.Packet
	for _, o := range out {
		if d, ok := o.(Data); ok {
			pkts = append(pkts, d.Packet)
		}
	}
	return pkts
}

func updates(out []Output) []Update {
	var us []Update
	for _, o := range out {
		if u, ok := o.(UpdateState); ok {
			us = append(us, u.Update)
		}
	}
	return us
}

func TestLogonChallengeSendsProof(t *testing.T) {
	s := loginSession(t, session.Settings{Account: "player", Password: "secret"})
	resp := protocol.LogonChallengeResponse{
		Result: protocol.AuthSuccess,
		G:      []byte{7},
		N: []byte{
			0xB7, 0x9B, 0x3E, 0x2A, 0x87, 0x82, 0x3C, 0xAB, 0x8F, 0x5E, 0xBF, 0xBF, 0x8E, 0xB1, 0x01, 0x08,
			0x53, 0x50, 0x06, 0x29, 0x8B, 0x5B, 0xAD, 0xBD, 0x5B, 0x53, 0xE1, 0x89, 0x5E, 0x64, 0x4B, 0x89,
		},
	}
	resp.B[0] = 0x42

	out, err := LogonChallenge{}.Handle(context.Background(), &Input{
		Packet:  loginPacket(protocol.CmdAuthLogonChallenge, encode(t, resp)),
		Session: s,
		Rand:    bytes.NewReader(bytes.Repeat([]byte{1}, 19)),
	})
	require.NoError(t, err)

	us := updates(out)
	require.Len(t, us, 1)
	pending, ok := us[0].(SetPendingProof)
	require.True(t, ok)
	require.NotNil(t, pending.Proof)

	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	assert.Equal(t, protocol.CmdAuthLogonProof, pkts[0].LoginOpcode())
	req, err := protocol.DecodeLogonProofRequest(pkts[0].Body)
	require.NoError(t, err)
	assert.Equal(t, pending.Proof.A, req.A)
	assert.Equal(t, pending.Proof.M1, req.M1)
}

func TestLogonChallengeRejected(t *testing.T) {
	s := loginSession(t, session.Settings{})
	body := encode(t, protocol.LogonChallengeResponse{Result: protocol.AuthFailUnknownAccount})
	_, err := LogonChallenge{}.Handle(context.Background(), &Input{
		Packet: loginPacket(protocol.CmdAuthLogonChallenge, body), Session: s,
	})
	assert.ErrorIs(t, err, ErrFatal)
}

func TestLogonProof(t *testing.T) {
	m2 := [20]byte{1, 2, 3}
	proof := &crypto.LogonProof{M2: m2, SessionKey: testKey}

	t.Run("accepted", func(t *testing.T) {
		s := loginSession(t, session.Settings{})
		s.SetPendingProof(proof)
		body := encode(t, protocol.LogonProofResponse{Result: protocol.AuthSuccess, M2: m2})

		out, err := LogonProof{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdAuthLogonProof, body), Session: s})
		require.NoError(t, err)

		require.IsType(t, UpdateState{}, out[0])
		assert.Equal(t, SetSessionKey{Key: testKey}, out[0].(UpdateState).Update)
		pkts := dataOutputs(out)
		require.Len(t, pkts, 1)
		assert.Equal(t, protocol.CmdRealmList, pkts[0].LoginOpcode())
		assert.IsType(t, ResponseMessage{}, out[len(out)-1])
	})

	t.Run("bad server proof", func(t *testing.T) {
		s := loginSession(t, session.Settings{})
		s.SetPendingProof(proof)
		body := encode(t, protocol.LogonProofResponse{Result: protocol.AuthSuccess, M2: [20]byte{9}})
		_, err := LogonProof{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdAuthLogonProof, body), Session: s})
		assert.ErrorIs(t, err, ErrFatal)
		assert.ErrorIs(t, err, crypto.ErrServerProof)
	})

	t.Run("no pending proof", func(t *testing.T) {
		s := loginSession(t, session.Settings{})
		body := encode(t, protocol.LogonProofResponse{Result: protocol.AuthSuccess, M2: m2})
		_, err := LogonProof{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdAuthLogonProof, body), Session: s})
		assert.ErrorIs(t, err, ErrUnexpected)
	})
}

func realmListBody(t *testing.T, entries ...protocol.RealmEntry) []byte {
	t.Helper()
	return encode(t, protocol.RealmListResponse{Realms: entries})
}

func TestRealmListAutoSelect(t *testing.T) {
	s := loginSession(t, session.Settings{RealmName: "pvp realm"})
	body := realmListBody(t,
		protocol.RealmEntry{Name: "Azeroth", Address: "127.0.0.1:8085", ID: 1},
		protocol.RealmEntry{Name: "PvP Realm", Address: "10.1.2.3:8086", ID: 2},
	)

	out, err := RealmList{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdRealmList, body), Session: s})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Len(t, out[0].(UpdateState).Update.(SetRealms).Realms, 2)
	assert.Equal(t, "PvP Realm", out[1].(UpdateState).Update.(SelectRealm).Realm.Name)
	assert.Equal(t, ConnectionRequest{Host: "10.1.2.3", Port: 8086}, out[2])
}

func TestRealmListChooser(t *testing.T) {
	s := loginSession(t, session.Settings{})
	body := realmListBody(t,
		protocol.RealmEntry{Name: "One", Address: "127.0.0.1:1"},
		protocol.RealmEntry{Name: "Two", Address: "127.0.0.1:2"},
	)
	chooser := &fixedChooser{idx: 1}

	out, err := RealmList{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdRealmList, body), Session: s, Chooser: chooser})
	require.NoError(t, err)
	require.Len(t, chooser.seen, 1)
	assert.Equal(t, ChoiceRealm, chooser.seen[0].Kind)
	assert.Equal(t, []string{"One", "Two"}, chooser.seen[0].Options)
	assert.Equal(t, ConnectionRequest{Host: "127.0.0.1", Port: 2}, out[2])

	_, err = RealmList{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdRealmList, body), Session: s})
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestRealmListMalformedAddressIsFatal(t *testing.T) {
	s := loginSession(t, session.Settings{RealmName: "Broken"})
	body := realmListBody(t, protocol.RealmEntry{Name: "Broken", Address: "badaddr"})

	out, err := RealmList{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdRealmList, body), Session: s})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, session.ErrMalformedAddress)
}

func TestRealmListMissingRealmIsFatal(t *testing.T) {
	s := loginSession(t, session.Settings{RealmName: "Nowhere"})
	body := realmListBody(t, protocol.RealmEntry{Name: "Azeroth", Address: "127.0.0.1:8085"})
	_, err := RealmList{}.Handle(context.Background(), &Input{Packet: loginPacket(protocol.CmdRealmList, body), Session: s})
	assert.ErrorIs(t, err, ErrFatal)
}

func TestAuthChallenge(t *testing.T) {
	s := loginSession(t, session.Settings{Account: "player"})
	s.SetSessionKey(testKey)
	require.NoError(t, s.SelectRealm(testRealm))

	challenge := protocol.AuthChallenge{One: 1, ServerSeed: 0x11223344}
	out, err := AuthChallenge{}.Handle(context.Background(), &Input{
		Packet:  worldPacket(protocol.SmsgAuthChallenge, encode(t, challenge)),
		Session: s,
		Rand:    bytes.NewReader([]byte{0x78, 0x56, 0x34, 0x12}),
	})
	require.NoError(t, err)

	// the session packet precedes the arming
	require.IsType(t, Data{}, out[0])
	require.IsType(t, UpdateState{}, out[1])
	assert.Equal(t, SetEncryption{Key: testKey}, out[1].(UpdateState).Update)

	pkt := out[0].(Data).Packet
	assert.Equal(t, protocol.CmsgAuthSession, pkt.WorldOpcode())
	sess, err := protocol.DecodeAuthSession(pkt.Body)
	require.NoError(t, err)
	assert.Equal(t, "PLAYER", sess.Account)
	assert.Equal(t, uint32(0x12345678), sess.ClientSeed)
	assert.Equal(t, uint32(1), sess.RealmID)
	assert.Equal(t, SessionDigest("PLAYER", 0x12345678, 0x11223344, testKey), sess.Digest)
	assert.NotEmpty(t, sess.AddonInfo)
}

func TestAuthChallengeWithoutKey(t *testing.T) {
	s := loginSession(t, session.Settings{})
	body := encode(t, protocol.AuthChallenge{})
	_, err := AuthChallenge{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgAuthChallenge, body), Session: s})
	assert.ErrorIs(t, err, crypto.ErrNoSessionKey)
}

func TestAuthResponseRequestsCharacters(t *testing.T) {
	s := armedSession(t, session.Settings{})
	body := encode(t, protocol.AuthResponse{Result: protocol.AuthResponseOK})

	out, err := AuthResponse{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgAuthResponse, body), Session: s})
	require.NoError(t, err)
	pkts := dataOutputs(out)
	require.Len(t, pkts, 3)
	assert.Equal(t, protocol.CmsgReadyForAccountDataTim, pkts[0].WorldOpcode())
	assert.Equal(t, protocol.CmsgCharEnum, pkts[1].WorldOpcode())
	assert.Equal(t, protocol.CmsgRealmSplit, pkts[2].WorldOpcode())
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, pkts[2].Body)

	body = encode(t, protocol.AuthResponse{Result: protocol.AuthResponseWaitQueue, QueuePosition: 3})
	out, err = AuthResponse{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgAuthResponse, body), Session: s})
	require.NoError(t, err)
	assert.Empty(t, dataOutputs(out))

	body = encode(t, protocol.AuthResponse{Result: protocol.AuthResponseBanned})
	_, err = AuthResponse{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgAuthResponse, body), Session: s})
	assert.ErrorIs(t, err, ErrFatal)
}

func TestRealmSplitRequestBody(t *testing.T) {
	pkt, err := RealmSplitRequest().Packet()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, pkt.Body)
}

func TestCharEnumSelectsConfiguredCharacter(t *testing.T) {
	s := armedSession(t, session.Settings{CharacterName: "jaina"})
	body := encode(t, protocol.CharEnum{Characters: []protocol.CharEnumEntry{
		{GUID: 1, Name: "Thrall", Level: 80},
		{GUID: 2, Name: "Jaina", Level: 70},
	}})

	out, err := CharEnum{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgCharEnum, body), Session: s})
	require.NoError(t, err)

	us := updates(out)
	require.Len(t, us, 2)
	assert.Len(t, us[0].(SetCharacters).Characters, 2)
	assert.Equal(t, uint64(2), us[1].(SetActiveCharacter).Character.GUID)

	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	login, err := protocol.DecodePlayerLogin(pkts[0].Body)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), login.GUID)
}

func TestCharEnumEmptyIsFatal(t *testing.T) {
	s := armedSession(t, session.Settings{})
	body := encode(t, protocol.CharEnum{})
	_, err := CharEnum{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgCharEnum, body), Session: s})
	assert.ErrorIs(t, err, ErrFatal)
}

func TestLoginVerifyWorldJoinsChannels(t *testing.T) {
	s := armedSession(t, session.Settings{Channels: session.ChannelLabels{General: "General", Trade: "Trade - City"}})
	body := encode(t, protocol.LoginVerifyWorld{Map: 1, X: 10, Y: 20, Z: 30, O: 1})

	out, err := LoginVerifyWorld{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgLoginVerifyWorld, body), Session: s})
	require.NoError(t, err)

	inWorld, ok := out[0].(UpdateState).Update.(SetInWorld)
	require.True(t, ok)
	assert.Equal(t, uint32(1), inWorld.Map)
	assert.Equal(t, float32(20), inWorld.Position.Y)

	pkts := dataOutputs(out)
	require.Len(t, pkts, 2)
	join, err := protocol.DecodeJoinChannel(pkts[1].Body)
	require.NoError(t, err)
	assert.Equal(t, "Trade - City", join.Name)

	require.NoError(t, inWorld.Apply(s))
	assert.Equal(t, session.InWorld, s.State())
}

func TestMessageChatRepliesThroughHook(t *testing.T) {
	s := armedSession(t, session.Settings{})
	s.SetName(7, "Jaina")
	hook := &echoHook{}
	body := encode(t, protocol.MessageChat{Type: protocol.ChatWhisper, SenderGUID: 7, Text: "hello"})

	out, err := MessageChat{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgMessageChat, body), Session: s, Chat: hook})
	require.NoError(t, err)
	assert.Equal(t, 1, hook.calls)

	var chat ChatMessage
	for _, o := range out {
		if m, ok := o.(ChatMessage); ok {
			chat = m
		}
	}
	assert.Equal(t, "Jaina", chat.Sender)
	assert.Equal(t, "hello", chat.Text)

	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	reply, err := protocol.DecodeSendChat(pkts[0].Body)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatWhisper, reply.Type)
	assert.Equal(t, "Jaina", reply.Target)
	assert.Equal(t, "echo: hello", reply.Text)
}

func TestMessageChatQueriesUnknownSender(t *testing.T) {
	s := armedSession(t, session.Settings{})
	body := encode(t, protocol.MessageChat{Type: protocol.ChatSay, SenderGUID: 99, TargetGUID: 99, Text: "hi"})

	out, err := MessageChat{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgMessageChat, body), Session: s})
	require.NoError(t, err)
	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	assert.Equal(t, protocol.CmsgNameQuery, pkts[0].WorldOpcode())
}

func TestMessageChatDecodeErrorDropsPacket(t *testing.T) {
	s := armedSession(t, session.Settings{})
	out, err := MessageChat{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgMessageChat, []byte{1, 2}), Session: s})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, protocol.ErrCannotRead)
	assert.False(t, errors.Is(err, ErrFatal))
}

func TestLogoutComplete(t *testing.T) {
	out, err := LogoutComplete{}.Handle(context.Background(), &Input{})
	require.NoError(t, err)
	assert.IsType(t, ExitConfirmed{}, out[len(out)-1])
}

func TestSetEncryptionTwiceRebuildsContext(t *testing.T) {
	s := loginSession(t, session.Settings{})
	require.NoError(t, s.SelectRealm(testRealm))

	keyA := bytes.Repeat([]byte{0xA}, crypto.SessionKeySize)
	keyB := bytes.Repeat([]byte{0xB}, crypto.SessionKeySize)

	require.NoError(t, SetEncryption{Key: keyA}.Apply(s))
	first := s.Crypt()
	require.NoError(t, SetEncryption{Key: keyB}.Apply(s))
	second := s.Crypt()
	require.NotSame(t, first, second)

	plain := []byte{0, 8, 0x95, 0, 0, 0}
	buf := append([]byte(nil), plain...)
	first.EncryptHeader(buf)
	peerB, err := crypto.NewContext(keyB, crypto.ServerSide)
	require.NoError(t, err)
	peerB.DecryptHeader(buf)
	assert.NotEqual(t, plain, buf)
}

func TestWardenHashRequest(t *testing.T) {
	s := armedSession(t, session.Settings{})
	server, err := crypto.NewWardenCipher(testKey, crypto.ServerSide)
	require.NoError(t, err)

	seed := [16]byte{1, 2, 3, 4}
	payload := server.Encrypt(encode(t, protocol.WardenHashRequest{Seed: seed}))

	out, err := WardenHashRequest{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, payload), Session: s})
	require.NoError(t, err)
	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	assert.Equal(t, protocol.CmsgWardenData, pkts[0].WorldOpcode())

	plain := server.Decrypt(pkts[0].Body)
	want := sha1.Sum(seed[:])
	assert.Equal(t, append([]byte{byte(protocol.WardenCmsgHashResult)}, want[:]...), plain)
}

func TestWardenModuleFlow(t *testing.T) {
	s := armedSession(t, session.Settings{})
	server, err := crypto.NewWardenCipher(testKey, crypto.ServerSide)
	require.NoError(t, err)

	run := func(h Handler, msg interface{ Encode() ([]byte, error) }) []Output {
		payload := server.Encrypt(encode(t, msg))
		out, err := h.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, payload), Session: s})
		require.NoError(t, err)
		for _, u := range updates(out) {
			require.NoError(t, u.Apply(s))
		}
		return out
	}

	out := run(WardenModuleUse{}, protocol.WardenModuleUse{Size: 6})
	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)
	assert.Equal(t, []byte{byte(protocol.WardenCmsgModuleMissing)}, server.Decrypt(pkts[0].Body))

	out = run(WardenModuleCache{}, protocol.WardenModuleCache{Data: []byte{1, 2, 3}})
	assert.Empty(t, dataOutputs(out))

	out = run(WardenModuleCache{}, protocol.WardenModuleCache{Data: []byte{4, 5, 6}})
	pkts = dataOutputs(out)
	require.Len(t, pkts, 1)
	assert.Equal(t, []byte{byte(protocol.WardenCmsgModuleOK)}, server.Decrypt(pkts[0].Body))
}

func TestWardenChecksGetEmptyResults(t *testing.T) {
	s := armedSession(t, session.Settings{})
	server, err := crypto.NewWardenCipher(testKey, crypto.ServerSide)
	require.NoError(t, err)

	checksum := crypto.WardenChecksum(nil)
	empty := func(op protocol.WardenClientOpcode) []byte {
		return []byte{byte(op), 0, 0, byte(checksum), byte(checksum >> 8), byte(checksum >> 16), byte(checksum >> 24)}
	}

	tests := []struct {
		name    string
		handler Handler
		request []byte
		want    []byte
	}{
		{"cheat checks", WardenCheatChecks{}, []byte{byte(protocol.WardenSmsgCheatChecks), 0xAA, 0xBB}, empty(protocol.WardenCmsgCheatResult)},
		{"memory checks", WardenMemChecks{}, []byte{byte(protocol.WardenSmsgMemChecks), 0x01}, empty(protocol.WardenCmsgMemResult)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := server.Encrypt(tt.request)
			out, err := tt.handler.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, payload), Session: s})
			require.NoError(t, err)
			pkts := dataOutputs(out)
			require.Len(t, pkts, 1)
			assert.Equal(t, protocol.CmsgWardenData, pkts[0].WorldOpcode())
			assert.Equal(t, tt.want, server.Decrypt(pkts[0].Body))
		})
	}
}

func TestWardenDiscardKeepsKeystreamAligned(t *testing.T) {
	s := armedSession(t, session.Settings{})
	server, err := crypto.NewWardenCipher(testKey, crypto.ServerSide)
	require.NoError(t, err)

	unknown := server.Encrypt([]byte{0x09, 1, 2, 3})
	out, err := WardenDiscard{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, unknown), Session: s})
	require.NoError(t, err)
	assert.Empty(t, dataOutputs(out))

	seed := [16]byte{9, 8, 7}
	payload := server.Encrypt(encode(t, protocol.WardenHashRequest{Seed: seed}))
	out, err = WardenHashRequest{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, payload), Session: s})
	require.NoError(t, err)
	pkts := dataOutputs(out)
	require.Len(t, pkts, 1)

	want := sha1.Sum(seed[:])
	assert.Equal(t, append([]byte{byte(protocol.WardenCmsgHashResult)}, want[:]...), server.Decrypt(pkts[0].Body))
}

func TestWardenBeforeEncryption(t *testing.T) {
	s := loginSession(t, session.Settings{})
	_, err := WardenMemChecks{}.Handle(context.Background(), &Input{Packet: worldPacket(protocol.SmsgWardenData, []byte{4}), Session: s})
	assert.ErrorIs(t, err, ErrUnexpected)
}
