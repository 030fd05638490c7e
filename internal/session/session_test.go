package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
)

func testKey(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, crypto.SessionKeySize)
}

var testRealm = Realm{ID: 1, Name: "Azeroth", Address: "127.0.0.1:8085"}

// toRealmSelected walks a fresh session up to RealmSelected.
func toRealmSelected(t *testing.T) *Session {
	t.Helper()
	s := New(Settings{Account: "PLAYER"})
	require.NoError(t, s.OnAuthConnected())
	s.SetSessionKey(testKey(1))
	s.SetRealms([]Realm{testRealm})
	require.NoError(t, s.SelectRealm(testRealm))
	return s
}

func TestParseRealmAddress(t *testing.T) {
	tests := []struct {
		addr    string
		host    string
		port    uint16
		wantErr bool
	}{
		{addr: "127.0.0.1:8085", host: "127.0.0.1", port: 8085},
		{addr: "realm.example.org:3724", host: "realm.example.org", port: 3724},
		{addr: "::1:8085", host: "::1", port: 8085},
		{addr: "badaddr", wantErr: true},
		{addr: "host:", wantErr: true},
		{addr: ":8085", wantErr: true},
		{addr: "host:port", wantErr: true},
		{addr: "host:70000", wantErr: true},
		{addr: "host:0", wantErr: true},
		{addr: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := ParseRealmAddress(tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestDisconnectedOnlyAllowsConnect(t *testing.T) {
	for _, to := range []State{RealmSelected, WorldEncrypted, InWorld} {
		s := New(Settings{})
		assert.ErrorIs(t, s.Transition(to), ErrIllegalTransition, to.String())
		assert.Equal(t, Disconnected, s.State())
	}

	s := New(Settings{})
	assert.NoError(t, s.OnAuthConnected())
	assert.Equal(t, AuthHandshake, s.State())
}

func TestArmEncryptionFailsClosedWithoutKey(t *testing.T) {
	s := New(Settings{})
	ctx, err := s.ArmEncryption(nil)
	assert.ErrorIs(t, err, crypto.ErrNoSessionKey)
	assert.Nil(t, ctx)
	assert.Nil(t, s.Crypt())
	assert.Nil(t, s.Warden())
	assert.Equal(t, Disconnected, s.State())
	assert.False(t, s.ClientFlags().Has(ClientConnectedToRealm))
}

func TestArmEncryptionRequiresRealm(t *testing.T) {
	s := New(Settings{})
	require.NoError(t, s.OnAuthConnected())
	s.SetSessionKey(testKey(1))

	_, err := s.ArmEncryption(nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Nil(t, s.Crypt())
}

func TestFullSequence(t *testing.T) {
	s := toRealmSelected(t)
	assert.NoError(t, s.OnRealmConnected())

	ctx, err := s.ArmEncryption(nil)
	require.NoError(t, err)
	assert.Same(t, ctx, s.Crypt())
	assert.NotNil(t, s.Warden())
	assert.Equal(t, WorldEncrypted, s.State())
	assert.True(t, s.ClientFlags().Has(ClientConnectedToRealm))

	s.SetCharacters([]Character{{GUID: 5, Name: "Thrall"}})
	c, ok := s.FindCharacter("thrall")
	require.True(t, ok)
	s.SetActiveCharacter(c)

	require.NoError(t, s.EnterWorld(Position{X: 1, Y: 2, Z: 3}, 1))
	assert.Equal(t, InWorld, s.State())
	assert.True(t, s.StateFlags().Has(StateInWorld))
	active, ok := s.ActiveCharacter()
	require.True(t, ok)
	assert.Equal(t, float32(2), active.Position.Y)

	// handshake packets replayed in world are rejected
	assert.ErrorIs(t, s.Transition(RealmSelected), ErrIllegalTransition)

	s.Reset()
	assert.Equal(t, Disconnected, s.State())
	assert.Nil(t, s.SessionKey())
	assert.Nil(t, s.Crypt())
	assert.Nil(t, s.Warden())
	assert.Equal(t, StateNone, s.StateFlags())
	assert.Equal(t, ClientNone, s.ClientFlags())
	assert.Empty(t, s.Realms())
	assert.Empty(t, s.Characters())
}

func TestRearmBuildsIndependentContexts(t *testing.T) {
	s := toRealmSelected(t)

	first, err := s.ArmEncryption(testKey(0xA))
	require.NoError(t, err)
	second, err := s.ArmEncryption(testKey(0xB))
	require.NoError(t, err)
	require.NotSame(t, first, second)
	assert.Same(t, second, s.Crypt())

	plain := []byte{0x00, 0x04, 0x37, 0x00, 0x00, 0x00}
	buf := append([]byte(nil), plain...)
	first.EncryptHeader(buf)

	peerB, err := crypto.NewContext(testKey(0xB), crypto.ServerSide)
	require.NoError(t, err)
	peerB.DecryptHeader(buf)
	assert.NotEqual(t, plain, buf)

	// a rebuilt context under the same key starts from a fresh keystream
	again, err := s.ArmEncryption(testKey(0xB))
	require.NoError(t, err)
	x := append([]byte(nil), plain...)
	y := append([]byte(nil), plain...)
	second.EncryptHeader(x)
	again.EncryptHeader(y)
	assert.Equal(t, x, y)
}

func TestSelectRealmRejectsMalformedAddress(t *testing.T) {
	s := New(Settings{})
	require.NoError(t, s.OnAuthConnected())

	err := s.SelectRealm(Realm{Name: "Broken", Address: "badaddr"})
	assert.ErrorIs(t, err, ErrMalformedAddress)
	assert.Equal(t, AuthHandshake, s.State())
	_, ok := s.SelectedRealm()
	assert.False(t, ok)
}

func TestOnRealmConnectedRequiresSelection(t *testing.T) {
	s := New(Settings{})
	require.NoError(t, s.OnAuthConnected())
	assert.ErrorIs(t, s.OnRealmConnected(), ErrIllegalTransition)
}

func TestPingPong(t *testing.T) {
	s := New(Settings{})
	start := time.Unix(100, 0)
	seq := s.NextPing(start)

	_, ok := s.RecordPong(seq+1, start.Add(time.Second))
	assert.False(t, ok)

	d, ok := s.RecordPong(seq, start.Add(40*time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 40*time.Millisecond, d)
	assert.Equal(t, d, s.Latency())
}

func TestWardenModuleAccounting(t *testing.T) {
	s := New(Settings{})
	s.StartWardenModule(10)
	assert.False(t, s.AddWardenModuleChunk(6))
	assert.True(t, s.AddWardenModuleChunk(4))
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", StateNone.String())
	assert.Equal(t, "in_world|logging_out", (StateInWorld | StateLoggingOut).String())
	assert.Equal(t, "connected_to_realm", ClientConnectedToRealm.String())
}

func TestChannelLabelsList(t *testing.T) {
	labels := ChannelLabels{Trade: "Trade - City", General: "General"}
	assert.Equal(t, []string{"General", "Trade - City"}, labels.List())
}
