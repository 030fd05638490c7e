package crypto

import (
	"crypto/rc4"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sync"
)

// sha1Randx is the key generator the anti-cheat channel derives its RC4
// keys from: two SHA1 halves of the seed are stirred with a running digest.
type sha1Randx struct {
	o0, o1, o2 [sha1.Size]byte
	taken      int
}

func newSHA1Randx(seed []byte) *sha1Randx {
	half := len(seed) / 2
	g := &sha1Randx{
		o1: sha1.Sum(seed[:half]),
		o2: sha1.Sum(seed[half:]),
	}
	g.fill()
	return g
}

func (g *sha1Randx) fill() {
	h := sha1.New()
	h.Write(g.o1[:])
	h.Write(g.o0[:])
	h.Write(g.o2[:])
	copy(g.o0[:], h.Sum(nil))
	g.taken = 0
}

func (g *sha1Randx) generate(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		if g.taken == sha1.Size {
			g.fill()
		}
		out[i] = g.o0[g.taken]
		g.taken++
	}
	return out
}

// WardenKeySize is the length of each anti-cheat RC4 key.
const WardenKeySize = 16

// WardenCipher encrypts the payload of CMSG_WARDEN_DATA and decrypts
// SMSG_WARDEN_DATA. Unlike the header cipher no keystream is dropped.
type WardenCipher struct {
	mu      sync.Mutex
	encrypt rc4.Cipher
	decrypt rc4.Cipher
}

// NewWardenCipher derives the anti-cheat keys from the session key. The
// first generated key protects client-to-server traffic, the second
// server-to-client traffic.
func NewWardenCipher(sessionKey []byte, role Role) (*WardenCipher, error) {
	if len(sessionKey) == 0 {
		return nil, ErrNoSessionKey
	}
	gen := newSHA1Randx(sessionKey)
	clientKey := gen.generate(WardenKeySize)
	serverKey := gen.generate(WardenKeySize)
	return newWardenCipher(clientKey, serverKey, role)
}

func newWardenCipher(clientKey, serverKey []byte, role Role) (*WardenCipher, error) {
	outKey, inKey := clientKey, serverKey
	if role == ServerSide {
		outKey, inKey = serverKey, clientKey
	}
	enc, err := rc4.NewCipher(outKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create warden encrypt cipher: %w", err)
	}
	dec, err := rc4.NewCipher(inKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create warden decrypt cipher: %w", err)
	}
	return &WardenCipher{encrypt: *enc, decrypt: *dec}, nil
}

// Encrypt returns an encrypted copy of payload.
func (w *WardenCipher) Encrypt(payload []byte) []byte {
	out := make([]byte, len(payload))
	w.mu.Lock()
	w.encrypt.XORKeyStream(out, payload)
	w.mu.Unlock()
	return out
}

// Decrypt returns a decrypted copy of payload and advances the inbound
// keystream.
func (w *WardenCipher) Decrypt(payload []byte) []byte {
	out := make([]byte, len(payload))
	w.mu.Lock()
	w.decrypt.XORKeyStream(out, payload)
	w.mu.Unlock()
	return out
}

// Peek decrypts the first n bytes of payload on a copy of the inbound
// cipher, leaving the keystream position untouched.
func (w *WardenCipher) Peek(payload []byte, n int) []byte {
	if n > len(payload) {
		n = len(payload)
	}
	w.mu.Lock()
	probe := w.decrypt
	w.mu.Unlock()
	out := make([]byte, n)
	probe.XORKeyStream(out, payload[:n])
	return out
}

// WardenChecksum folds the SHA1 of data into a single uint32, as the
// anti-cheat results carry it.
func WardenChecksum(data []byte) uint32 {
	sum := sha1.Sum(data)
	var v uint32
	for i := 0; i < sha1.Size; i += 4 {
		v ^= binary.LittleEndian.Uint32(sum[i:])
	}
	return v
}
