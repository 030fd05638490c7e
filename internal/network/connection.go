// Package network implements the TCP transport to the auth and realm
// servers: frame readers for both protocols and a single locked writer.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

// ErrNotConnected is returned by reads and writes on a closed transport.
var ErrNotConnected = errors.New("transport not connected")

// Transport carries packets of one protocol space at a time.
type Transport interface {
	Connect(ctx context.Context, host string, port uint16, space protocol.Space) error
	ReadPacket() (protocol.Packet, error)
	WritePacket(pkt protocol.Packet) error
	SetCipher(c *crypto.Context)
	Close() error
}

// Options tune the TCP transport.
type Options struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// DebugPackets logs every frame at trace level.
	DebugPackets bool
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Second,
	}
}

// OptionsFromConfig reads the timeouts from the connection section and
// packet tracing from the behaviour section.
func OptionsFromConfig(cfg *config.Config) Options {
	conn := cfg.GetConnection()
	opts := DefaultOptions()
	if conn.ConnectTimeoutSec > 0 {
		opts.DialTimeout = config.Seconds(conn.ConnectTimeoutSec)
	}
	if conn.ReadTimeoutSec > 0 {
		opts.ReadTimeout = config.Seconds(conn.ReadTimeoutSec)
	}
	opts.DebugPackets = cfg.GetBehaviour().DebugPackets
	return opts
}

// Dialer opens raw connections. net.Dialer satisfies it; tests use pipes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Connection is a Transport over TCP. Reads happen on the dispatch
// goroutine only; writes may come from any goroutine and are serialized,
// which keeps the outbound header keystream in write order.
type Connection struct {
	opts   Options
	dialer Dialer

	mu     sync.Mutex
	conn   net.Conn
	space  protocol.Space
	cipher *crypto.Context
	logger zerolog.Logger

	// Timestamps
	connectedAt  time.Time
	lastActivity time.Time
}

// NewConnection creates an unconnected transport. A nil dialer uses
// net.Dialer with opts.DialTimeout.
func NewConnection(opts Options, dialer Dialer) *Connection {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: opts.DialTimeout}
	}
	return &Connection{
		opts:   opts,
		dialer: dialer,
		logger: util.ComponentLogger("connection"),
	}
}

// Connect dials host:port and prepares to speak space. An existing
// connection is closed first and any header cipher is dropped.
func (c *Connection) Connect(ctx context.Context, host string, port uint16, space protocol.Space) error {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.mu.Lock()
	old := c.conn
	now := time.Now()
	c.conn = conn
	c.space = space
	c.cipher = nil
	c.connectedAt = now
	c.lastActivity = now
	c.logger = log.With().
		Str("component", "connection").
		Str("remote", addr).
		Stringer("space", space).
		Logger()
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.logger.Info().Msg("connected")
	return nil
}

// SetCipher arms header encryption for the following reads and writes.
func (c *Connection) SetCipher(ctx *crypto.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cipher = ctx
}

// ReadPacket reads one frame of the current space. It blocks until a frame
// is complete or the read timeout fires.
func (c *Connection) ReadPacket() (protocol.Packet, error) {
	c.mu.Lock()
	conn, space, logger := c.conn, c.space, c.logger
	c.mu.Unlock()
	if conn == nil {
		return protocol.Packet{}, ErrNotConnected
	}

	if c.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}

	var (
		pkt protocol.Packet
		err error
	)
	switch space {
	case protocol.LoginSpace:
		pkt, err = protocol.ReadLoginFrame(conn)
	default:
		pkt, err = protocol.ReadWorldFrame(conn, c.decryptHeader)
	}
	if err != nil {
		return protocol.Packet{}, err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if c.opts.DebugPackets {
		logger.Trace().
			Str("opcode", pkt.OpcodeName()).
			Int("size", len(pkt.Body)).
			Stringer("body", protocol.HexBytes(pkt.Body)).
			Msg("<- recv")
	}
	return pkt, nil
}

// decryptHeader runs the inbound header through the armed cipher. The
// cipher is read per call since it may be armed between two frames.
func (c *Connection) decryptHeader(hdr []byte) {
	c.mu.Lock()
	cipher := c.cipher
	c.mu.Unlock()
	if cipher != nil {
		cipher.DecryptHeader(hdr)
	}
}

// WritePacket encodes pkt, encrypts its header when armed and writes it.
func (c *Connection) WritePacket(pkt protocol.Packet) error {
	raw := pkt.Bytes()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if pkt.Space == protocol.WorldSpace && c.cipher != nil {
		c.cipher.EncryptHeader(raw[:protocol.WorldOutboundHeaderSize])
	}

	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := c.conn.Write(raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", pkt.OpcodeName(), err)
	}
	c.lastActivity = time.Now()

	if c.opts.DebugPackets {
		c.logger.Trace().
			Str("opcode", pkt.OpcodeName()).
			Int("size", len(pkt.Body)).
			Stringer("body", protocol.HexBytes(pkt.Body)).
			Msg("-> send")
	}
	return nil
}

// Close closes the connection. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.cipher = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.logger.Info().Msg("connection closed")
	return conn.Close()
}

// IsClosed returns whether there is no open connection.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the current connection was established.
func (c *Connection) ConnectedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedAt
}
