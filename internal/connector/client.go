// Package connector drives a session end to end: it owns the transport,
// runs the dispatch loop over the processors and reconnects with backoff.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/handler"
	"github.com/realmwalker-project/realmwalker/internal/network"
	"github.com/realmwalker-project/realmwalker/internal/processor"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

const eventSource = "client"

var (
	// ErrNotInWorld is returned by chat sends before the character entered
	// the world.
	ErrNotInWorld = errors.New("not in world")

	// errExit ends a run after the server confirmed the logout.
	errExit = errors.New("session exited")
)

// Options configure a Client.
type Options struct {
	AuthHost  string
	AuthPort  uint16
	Keepalive time.Duration
	Reconnect ReconnectPolicy
	// ChatRate limits outbound chat lines per second. Zero disables the limit.
	ChatRate float64
}

// OptionsFromConfig reads the client options from the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	conn := cfg.GetConnection()
	beh := cfg.GetBehaviour()
	return Options{
		AuthHost:  conn.AuthHost,
		AuthPort:  uint16(conn.AuthPort),
		Keepalive: config.Seconds(beh.KeepaliveIntervalSec),
		Reconnect: PolicyFromConfig(cfg.GetReconnect()),
		ChatRate:  float64(beh.ChatRatePerSec),
	}
}

// Client is the dispatch loop. Reads, handler calls and state updates
// all happen on one goroutine; only writes are shared with the keepalive
// and with Say.
type Client struct {
	opts       Options
	session    *session.Session
	transport  network.Transport
	processors []processor.Processor
	bus        *events.EventBus
	broadcast  *events.Broadcast
	selector   *Selector
	limiter    *rate.Limiter
	logger     zerolog.Logger

	hookMu sync.RWMutex
	hook   handler.ChatHook

	mu      sync.Mutex
	runID   string
	running bool

	// rand and now are replaced in tests.
	rand io.Reader
	now  func() time.Time
}

// NewClient wires a client. bus and broadcast may be nil.
func NewClient(opts Options, sess *session.Session, transport network.Transport, bus *events.EventBus, broadcast *events.Broadcast) *Client {
	limit := rate.Inf
	if opts.ChatRate > 0 {
		limit = rate.Limit(opts.ChatRate)
	}
	c := &Client{
		opts:       opts,
		session:    sess,
		transport:  transport,
		processors: processor.Default(),
		bus:        bus,
		broadcast:  broadcast,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     util.ComponentLogger("dispatch"),
		now:        time.Now,
	}
	c.selector = NewSelector(func(req handler.ChoiceRequest) {
		c.publish(events.EventChoiceRequest, events.ChoicePayload{Kind: string(req.Kind), Options: req.Options})
	})
	return c
}

// SetChatHook installs the hook asked for replies to incoming chat.
func (c *Client) SetChatHook(h handler.ChatHook) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hook = h
}

func (c *Client) chatHook() handler.ChatHook {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.hook
}

// Session returns the driven session.
func (c *Client) Session() *session.Session { return c.session }

// Selector returns the chooser the CLI and API answer through.
func (c *Client) Selector() *Selector { return c.selector }

// RunID returns the id of the current connection attempt.
func (c *Client) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Status is the combined view shown by the CLI and the API.
type Status struct {
	RunID   string           `json:"run_id"`
	Running bool             `json:"running"`
	Session session.Snapshot `json:"session"`
}

// Status snapshots the client.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{RunID: c.runID, Running: c.running}
	c.mu.Unlock()
	st.Session = c.session.Snapshot()
	return st
}

// Run connects and keeps the session alive until ctx ends, the session
// exits cooperatively or a fatal error occurs. Only the last two are
// returned as results: exit yields nil, a fatal error is returned as is.
func (c *Client) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)

	attempt := 0
	for {
		reachedWorld, err := c.runOnce(ctx)
		attempt++
		if reachedWorld {
			attempt = 1
		}

		fatal := errors.Is(err, handler.ErrFatal)
		c.publish(events.EventDisconnected, events.DisconnectedPayload{
			RunID:   c.RunID(),
			Reason:  reason(err),
			Fatal:   fatal,
			Attempt: attempt,
		})

		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errExit):
			c.publish(events.EventExit, events.ExitPayload{Reason: "logout complete"})
			return nil
		case fatal:
			c.logger.Error().Err(err).Msg("session failed")
			return err
		case !c.opts.Reconnect.ShouldRetry(attempt, err):
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := c.opts.Reconnect.Delay(attempt)
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) setRunning(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = v
}

func reason(err error) string {
	if err == nil {
		return "closed"
	}
	if errors.Is(err, errExit) {
		return "logout complete"
	}
	return err.Error()
}

// runOnce performs one login and serves the connection until it breaks.
// It reports whether the session reached the world.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	runID := uuid.NewString()
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()

	c.session.Reset()
	defer c.teardown()

	settings := c.session.Settings()
	account := strings.ToUpper(settings.Account)

	if err := c.transport.Connect(ctx, c.opts.AuthHost, c.opts.AuthPort, protocol.LoginSpace); err != nil {
		return false, err
	}
	if err := c.session.OnAuthConnected(); err != nil {
		return false, err
	}
	c.publish(events.EventConnected, events.ConnectedPayload{
		RunID:   runID,
		Account: account,
		Space:   protocol.LoginSpace.String(),
		Host:    c.opts.AuthHost,
		Port:    c.opts.AuthPort,
	})
	c.publishState(session.Disconnected, session.AuthHandshake)

	if err := c.Send(protocol.NewLogonChallengeRequest(account)); err != nil {
		return false, err
	}

	reached := false
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.keepAlive(gctx)
	})
	g.Go(func() error {
		err := c.dispatch(gctx, &reached)
		if err == nil {
			err = io.EOF
		}
		return err
	})
	g.Go(func() error {
		// Unblocks the read when ctx ends or the keepalive gives up.
		<-gctx.Done()
		return c.transport.Close()
	})

	return reached, g.Wait()
}

// teardown closes the transport and drops the session secrets, so
// nothing survives a broken connection into the backoff delay.
func (c *Client) teardown() {
	c.transport.Close()
	from := c.session.State()
	c.session.Reset()
	if from != session.Disconnected {
		c.publishState(from, session.Disconnected)
	}
}

// dispatch reads frames and runs their handlers until an error ends the
// connection.
func (c *Client) dispatch(ctx context.Context, reached *bool) error {
	for {
		pkt, err := c.transport.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read packet: %w", err)
		}

		if err := c.handle(ctx, pkt); err != nil {
			return err
		}
		if c.session.State() == session.InWorld {
			*reached = true
		}
	}
}

// handle runs every handler routed for pkt and applies its outputs in
// order. Only fatal errors and exit end the connection.
func (c *Client) handle(ctx context.Context, pkt protocol.Packet) error {
	entries := processor.Route(c.processors, pkt, c.session)
	if len(entries) == 0 {
		c.logger.Debug().Str("opcode", pkt.OpcodeName()).Int("size", len(pkt.Body)).Msg("unhandled packet")
		return nil
	}
	c.session.TouchInbound(c.now())

	for _, e := range entries {
		state := c.session.State()
		if !e.Accepts(state) {
			c.logger.Warn().
				Str("handler", e.Name).
				Stringer("state", state).
				Msg("packet rejected in current state")
			continue
		}

		in := &handler.Input{
			Packet:  pkt,
			Session: c.session,
			Chooser: c.selector,
			Chat:    c.chatHook(),
			Rand:    c.rand,
			Now:     c.now,
		}
		outputs, err := c.safeCall(ctx, e, in)
		if err != nil {
			if errors.Is(err, handler.ErrFatal) {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			c.logger.Warn().Err(err).Str("handler", e.Name).Msg("handler failed")
			continue
		}
		if err := c.apply(ctx, outputs); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) safeCall(ctx context.Context, e processor.Entry, in *handler.Input) (out []handler.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("handler", e.Name).Msg("handler panicked")
			err = fmt.Errorf("handler %s panicked: %v", e.Name, r)
		}
	}()
	return e.New().Handle(ctx, in)
}

// apply executes outputs in order. An ExitConfirmed finishes the
// remaining outputs first.
func (c *Client) apply(ctx context.Context, outputs []handler.Output) error {
	exit := false
	for _, o := range outputs {
		switch out := o.(type) {
		case handler.Data:
			if err := c.transport.WritePacket(out.Packet); err != nil {
				return err
			}
		case handler.UpdateState:
			if err := c.applyUpdate(out.Update); err != nil {
				return err
			}
		case handler.ConnectionRequest:
			if err := c.connectRealm(ctx, out); err != nil {
				return err
			}
		case handler.ResponseMessage:
			ev := c.logger.Info().Str("label", out.Label)
			if out.Detail != nil {
				ev = ev.Str("detail", *out.Detail)
			}
			ev.Msg("message")
			c.publish(events.EventMessage, events.MessagePayload{Label: out.Label, Detail: out.Detail})
		case handler.ChoiceRequest:
			c.publish(events.EventChoiceRequest, events.ChoicePayload{Kind: string(out.Kind), Options: out.Options})
		case handler.ChatMessage:
			c.publish(events.EventChat, events.ChatPayload{
				Type:       out.Type.String(),
				Channel:    out.Channel,
				SenderGUID: out.SenderGUID,
				Sender:     out.Sender,
				Text:       out.Text,
				ReceivedAt: out.ReceivedAt,
			})
		case handler.ExitConfirmed:
			c.logger.Info().Str("reason", out.Reason).Msg("exit confirmed")
			exit = true
		case handler.Void:
		default:
			c.logger.Warn().Str("kind", handler.Kind(o)).Msg("unknown output")
		}
	}
	if exit {
		return errExit
	}
	return nil
}

func (c *Client) applyUpdate(u handler.Update) error {
	from := c.session.State()
	if err := u.Apply(c.session); err != nil {
		return fmt.Errorf("failed to apply %T: %w", u, err)
	}
	if to := c.session.State(); to != from {
		c.publishState(from, to)
	}

	switch v := u.(type) {
	case handler.SetEncryption:
		c.transport.SetCipher(c.session.Crypt())
	case handler.SetRealms:
		realms := make([]events.RealmPayload, len(v.Realms))
		for i, r := range v.Realms {
			realms[i] = events.RealmPayload{
				ID:         r.ID,
				Name:       r.Name,
				Address:    r.Address,
				Population: r.Population,
				Characters: r.Characters,
				Locked:     r.Locked,
			}
		}
		c.publish(events.EventRealmList, realms)
	case handler.SetCharacters:
		chars := make([]events.CharacterPayload, len(v.Characters))
		for i, ch := range v.Characters {
			chars[i] = events.CharacterPayload{GUID: ch.GUID, Name: ch.Name, Level: ch.Level, Race: ch.Race, Class: ch.Class, Zone: ch.Zone}
		}
		c.publish(events.EventCharacterList, chars)
	case handler.SetInWorld:
		payload := events.EnteredWorldPayload{Map: v.Map, X: v.Position.X, Y: v.Position.Y, Z: v.Position.Z}
		if ch, ok := c.session.ActiveCharacter(); ok {
			payload.Character = ch.Name
		}
		c.publish(events.EventEnteredWorld, payload)
	case handler.RecordPong:
		c.publish(events.EventLatency, events.LatencyPayload{Sequence: v.Sequence, Latency: c.session.Latency()})
	}
	return nil
}

// connectRealm swaps the auth connection for the realm connection.
func (c *Client) connectRealm(ctx context.Context, req handler.ConnectionRequest) error {
	c.transport.Close()
	if err := c.transport.Connect(ctx, req.Host, req.Port, protocol.WorldSpace); err != nil {
		return err
	}
	if err := c.session.OnRealmConnected(); err != nil {
		return err
	}
	c.publish(events.EventConnected, events.ConnectedPayload{
		RunID:   c.RunID(),
		Account: strings.ToUpper(c.session.Settings().Account),
		Space:   protocol.WorldSpace.String(),
		Host:    req.Host,
		Port:    req.Port,
	})
	return nil
}

// keepAlive pings the realm server while in world. A failed ping ends
// the connection.
func (c *Client) keepAlive(ctx context.Context) error {
	if c.opts.Keepalive <= 0 {
		return nil
	}
	ticker := time.NewTicker(c.opts.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.session.State() != session.InWorld {
				continue
			}
			seq := c.session.NextPing(c.now())
			if err := c.Send(handler.PingRequest(seq, c.session.Latency())); err != nil {
				return fmt.Errorf("failed to send keepalive: %w", err)
			}
			c.logger.Trace().Uint32("seq", seq).Msg("keepalive sent")
		}
	}
}

// Disconnect drops the current connection. Run reconnects with backoff.
func (c *Client) Disconnect() error {
	c.logger.Warn().Msg("dropping connection on request")
	return c.transport.Close()
}

// Send encodes and writes msg on the current connection.
func (c *Client) Send(msg protocol.Message) error {
	pkt, err := msg.Packet()
	if err != nil {
		return err
	}
	return c.transport.WritePacket(pkt)
}

// Say sends a chat line. target names the whisper recipient or the
// channel and is ignored for other types.
func (c *Client) Say(ctx context.Context, typ protocol.ChatType, target, text string) error {
	if c.session.State() != session.InWorld {
		return ErrNotInWorld
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.Send(protocol.SendChat{Type: typ, Language: protocol.LangUniversal, Target: target, Text: text})
}

// Logout asks the server to log the character out. The run ends once the
// server confirms.
func (c *Client) Logout() error {
	if c.session.State() != session.InWorld {
		return ErrNotInWorld
	}
	c.session.SetLoggingOut(true)
	return c.Send(handler.LogoutRequest())
}

func (c *Client) publishState(from, to session.State) {
	c.publish(events.EventStateChanged, events.StateChangedPayload{From: from.String(), To: to.String()})
}

func (c *Client) publish(typ events.EventType, payload interface{}) {
	ev := events.New(typ, eventSource, payload)
	if c.bus != nil {
		c.bus.Emit(context.Background(), ev)
	}
	if c.broadcast != nil {
		c.broadcast.Publish(ev)
	}
}
