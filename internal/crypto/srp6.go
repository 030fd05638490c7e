package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SessionKeySize is the length of K produced by the SRP6 exchange.
const SessionKeySize = 40

var (
	ErrInvalidServerKey = errors.New("server public key is zero mod N")
	ErrServerProof      = errors.New("server proof mismatch")
)

var srpK = big.NewInt(3)

// LogonProof is the client side of a completed SRP6 exchange.
type LogonProof struct {
	A          [32]byte
	M1         [20]byte
	M2         [20]byte // expected server proof
	SessionKey []byte
}

// VerifyServer checks the M2 sent back by the server.
func (p *LogonProof) VerifyServer(m2 [20]byte) error {
	if !bytes.Equal(p.M2[:], m2[:]) {
		return ErrServerProof
	}
	return nil
}

// ComputeLogonProof runs the client half of SRP6 against the values of a
// successful logon challenge. All numbers are little-endian on the wire.
// A nil rnd uses crypto/rand.
func ComputeLogonProof(account, password string, B, g, N, salt []byte, rnd io.Reader) (*LogonProof, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	if len(N) == 0 || len(g) == 0 {
		return nil, fmt.Errorf("invalid SRP6 parameters: empty g or N")
	}

	n := leInt(N)
	gen := leInt(g)
	b := leInt(B)
	if new(big.Int).Mod(b, n).Sign() == 0 {
		return nil, ErrInvalidServerKey
	}

	// Casers keep state and are not shared between goroutines.
	user := cases.Upper(language.Und).String(account)
	pass := cases.Upper(language.Und).String(password)

	x := leInt(sha1Sum(salt, sha1Sum([]byte(user+":"+pass))))

	var (
		a    *big.Int
		bigA *big.Int
	)
	for {
		priv := make([]byte, 19)
		if _, err := io.ReadFull(rnd, priv); err != nil {
			return nil, fmt.Errorf("failed to generate SRP6 private key: %w", err)
		}
		a = leInt(priv)
		bigA = new(big.Int).Exp(gen, a, n)
		if bigA.Sign() != 0 {
			break
		}
	}

	size := len(N)
	aBytes := leBytes(bigA, size)
	bBytes := leBytes(b, size)

	u := leInt(sha1Sum(aBytes, bBytes))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(gen, x, n)
	base := new(big.Int).Sub(b, new(big.Int).Mul(srpK, gx))
	base.Mod(base, n)
	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))
	s := new(big.Int).Exp(base, exp, n)

	key := interleave(leBytes(s, size))

	hn := sha1Sum(N)
	hg := sha1Sum(g)
	for i := range hn {
		hn[i] ^= hg[i]
	}

	m1 := sha1Sum(hn, sha1Sum([]byte(user)), salt, aBytes, bBytes, key)
	m2 := sha1Sum(aBytes, m1, key)

	proof := &LogonProof{SessionKey: key}
	copy(proof.A[:], aBytes)
	copy(proof.M1[:], m1)
	copy(proof.M2[:], m2)
	return proof, nil
}

// interleave hashes the even and odd bytes of S separately and zips the
// digests into a 40-byte key.
func interleave(s []byte) []byte {
	half := len(s) / 2
	even := make([]byte, half)
	odd := make([]byte, half)
	for i := 0; i < half; i++ {
		even[i] = s[2*i]
		odd[i] = s[2*i+1]
	}
	he := sha1Sum(even)
	ho := sha1Sum(odd)

	key := make([]byte, SessionKeySize)
	for i := 0; i < sha1.Size; i++ {
		key[2*i] = he[i]
		key[2*i+1] = ho[i]
	}
	return key
}

func sha1Sum(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// leInt interprets b as a little-endian unsigned integer.
func leInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

// leBytes renders v little-endian, zero padded to size bytes.
func leBytes(v *big.Int, size int) []byte {
	be := v.Bytes()
	if len(be) > size {
		size = len(be)
	}
	out := make([]byte, size)
	for i := range be {
		out[i] = be[len(be)-1-i]
	}
	return out
}
