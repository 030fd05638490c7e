package crypto

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Modulus used by 3.3.5a auth servers, big-endian.
const modulusHex = "894B645E89E1535BBDAD5B8B290650530801B18EBFBF5E8FAB3C82872A3E9BB7"

type testServer struct {
	n, g, v, b, bigB *big.Int
	salt             []byte
}

func newTestServer(t *testing.T, account, password string) *testServer {
	t.Helper()
	n, ok := new(big.Int).SetString(modulusHex, 16)
	require.True(t, ok)
	g := big.NewInt(7)

	salt := bytes.Repeat([]byte{0x5A}, 32)
	user := strings.ToUpper(account)
	pass := strings.ToUpper(password)
	x := leInt(sha1Sum(salt, sha1Sum([]byte(user+":"+pass))))
	v := new(big.Int).Exp(g, x, n)

	b := leInt(bytes.Repeat([]byte{0x21}, 19))
	bigB := new(big.Int).Exp(g, b, n)
	bigB.Add(bigB, new(big.Int).Mul(srpK, v))
	bigB.Mod(bigB, n)

	return &testServer{n: n, g: g, v: v, b: b, bigB: bigB, salt: salt}
}

func (s *testServer) challenge() (B, g, N []byte) {
	return leBytes(s.bigB, 32), leBytes(s.g, 1), leBytes(s.n, 32)
}

// sessionKey computes K from the server's side of the exchange.
func (s *testServer) sessionKey(a []byte) []byte {
	bigA := leInt(a)
	u := leInt(sha1Sum(a, leBytes(s.bigB, 32)))
	base := new(big.Int).Mul(bigA, new(big.Int).Exp(s.v, u, s.n))
	base.Mod(base, s.n)
	S := new(big.Int).Exp(base, s.b, s.n)
	return interleave(leBytes(S, 32))
}

func TestComputeLogonProofAgreesWithServer(t *testing.T) {
	srv := newTestServer(t, "player", "secret")
	B, g, N := srv.challenge()

	rnd := bytes.NewReader(bytes.Repeat([]byte{0x42}, 19))
	proof, err := ComputeLogonProof("player", "secret", B, g, N, srv.salt, rnd)
	require.NoError(t, err)

	require.Len(t, proof.SessionKey, SessionKeySize)
	assert.Equal(t, srv.sessionKey(proof.A[:]), proof.SessionKey)

	// server-side M1 over the same transcript
	hn := sha1Sum(N)
	hg := sha1Sum(g)
	for i := range hn {
		hn[i] ^= hg[i]
	}
	m1 := sha1Sum(hn, sha1Sum([]byte("PLAYER")), srv.salt, proof.A[:], B, proof.SessionKey)
	assert.Equal(t, m1, proof.M1[:])

	var m2 [20]byte
	copy(m2[:], sha1Sum(proof.A[:], m1, proof.SessionKey))
	assert.NoError(t, proof.VerifyServer(m2))

	m2[0] ^= 0xFF
	assert.ErrorIs(t, proof.VerifyServer(m2), ErrServerProof)
}

func TestComputeLogonProofCaseInsensitive(t *testing.T) {
	srv := newTestServer(t, "Player", "SeCrEt")
	B, g, N := srv.challenge()

	proof, err := ComputeLogonProof("pLAYER", "secret", B, g, N, srv.salt,
		bytes.NewReader(bytes.Repeat([]byte{0x11}, 19)))
	require.NoError(t, err)
	assert.Equal(t, srv.sessionKey(proof.A[:]), proof.SessionKey)
}

func TestComputeLogonProofWrongPassword(t *testing.T) {
	srv := newTestServer(t, "player", "secret")
	B, g, N := srv.challenge()

	proof, err := ComputeLogonProof("player", "guess", B, g, N, srv.salt,
		bytes.NewReader(bytes.Repeat([]byte{0x42}, 19)))
	require.NoError(t, err)
	assert.NotEqual(t, srv.sessionKey(proof.A[:]), proof.SessionKey)
}

func TestComputeLogonProofRejectsZeroB(t *testing.T) {
	srv := newTestServer(t, "player", "secret")
	_, g, N := srv.challenge()

	_, err := ComputeLogonProof("player", "secret", N, g, N, srv.salt, nil)
	assert.ErrorIs(t, err, ErrInvalidServerKey)

	_, err = ComputeLogonProof("player", "secret", make([]byte, 32), g, N, srv.salt, nil)
	assert.ErrorIs(t, err, ErrInvalidServerKey)
}

func TestInterleaveLength(t *testing.T) {
	key := interleave(make([]byte, 32))
	assert.Len(t, key, SessionKeySize)
}
