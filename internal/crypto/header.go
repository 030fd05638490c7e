// Package crypto implements the key material of the world protocol: the
// header cipher armed after CMSG_AUTH_SESSION, the SRP6 client used on the
// auth server, and the anti-cheat payload cipher.
package crypto

import (
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"
	"errors"
	"fmt"
	"sync"
)

// Role selects which engine key a Context encrypts with.
type Role int

const (
	// ClientSide encrypts client-to-server headers and decrypts server-to-client ones.
	ClientSide Role = iota
	// ServerSide is the mirror image, used by local test servers.
	ServerSide
)

func (r Role) String() string {
	if r == ServerSide {
		return "server"
	}
	return "client"
}

// DropBytes is the number of keystream bytes discarded before use.
const DropBytes = 1024

// ErrNoSessionKey is returned when a cipher is requested before the logon
// proof produced a session key.
var ErrNoSessionKey = errors.New("no session key")

// Engine keys for each direction of the header cipher.
var (
	clientToServerKey = []byte{
		0xC2, 0xB3, 0x72, 0x3C, 0xC6, 0xAE, 0xD9, 0xB5,
		0x34, 0x3C, 0x53, 0xEE, 0x2F, 0x43, 0x67, 0xCE,
	}
	serverToClientKey = []byte{
		0xCC, 0x98, 0xAE, 0x04, 0xE8, 0x97, 0xEA, 0xCA,
		0x12, 0xDD, 0xC0, 0x93, 0x42, 0x91, 0x53, 0x57,
	}
)

// Context encrypts outgoing and decrypts incoming world headers. Each
// direction owns its own RC4 instance; they advance independently.
type Context struct {
	role Role

	encMu   sync.Mutex
	encrypt *rc4.Cipher

	decMu   sync.Mutex
	decrypt *rc4.Cipher
}

// NewContext derives both directions from sessionKey. An empty key fails
// closed: no context is created.
func NewContext(sessionKey []byte, role Role) (*Context, error) {
	if len(sessionKey) == 0 {
		return nil, ErrNoSessionKey
	}

	outKey, inKey := clientToServerKey, serverToClientKey
	if role == ServerSide {
		outKey, inKey = serverToClientKey, clientToServerKey
	}

	enc, err := newDroppedRC4(outKey, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypt cipher: %w", err)
	}
	dec, err := newDroppedRC4(inKey, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create decrypt cipher: %w", err)
	}

	return &Context{role: role, encrypt: enc, decrypt: dec}, nil
}

// newDroppedRC4 keys RC4 with HMAC-SHA1(engineKey, sessionKey) and discards
// the first DropBytes of keystream.
func newDroppedRC4(engineKey, sessionKey []byte) (*rc4.Cipher, error) {
	mac := hmac.New(sha1.New, engineKey)
	mac.Write(sessionKey)
	c, err := rc4.NewCipher(mac.Sum(nil))
	if err != nil {
		return nil, err
	}
	var drop [DropBytes]byte
	c.XORKeyStream(drop[:], drop[:])
	return c, nil
}

// Role reports which side this context was built for.
func (c *Context) Role() Role {
	return c.role
}

// EncryptHeader encrypts an outgoing header in place.
func (c *Context) EncryptHeader(data []byte) {
	c.encMu.Lock()
	c.encrypt.XORKeyStream(data, data)
	c.encMu.Unlock()
}

// DecryptHeader decrypts an incoming header in place.
func (c *Context) DecryptHeader(data []byte) {
	c.decMu.Lock()
	c.decrypt.XORKeyStream(data, data)
	c.decMu.Unlock()
}
