package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// Handler runs the logic bound to one opcode.
type Handler interface {
	Handle(ctx context.Context, in *Input) ([]Output, error)
}

// Func adapts a plain function to Handler.
type Func func(ctx context.Context, in *Input) ([]Output, error)

func (f Func) Handle(ctx context.Context, in *Input) ([]Output, error) {
	return f(ctx, in)
}

// Chooser resolves a ChoiceRequest to an index into its options. The CLI
// and the API feed it; it returns when ctx ends.
type Chooser interface {
	Choose(ctx context.Context, req ChoiceRequest) (int, error)
}

// ChatHook may produce a reply to an incoming chat line.
type ChatHook interface {
	OnChat(ctx context.Context, msg ChatMessage) (reply string, ok bool, err error)
}

// Input bundles what a handler may look at.
type Input struct {
	Packet  protocol.Packet
	Session *session.Session
	Chooser Chooser
	Chat    ChatHook
	// Rand feeds SRP6 and the client seed. Nil uses crypto/rand.
	Rand io.Reader
	Now  func() time.Time
}

func (in *Input) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

var (
	// ErrFatal marks errors that end the run without a reconnect:
	// rejected credentials, a missing realm or character, a malformed
	// realm address.
	ErrFatal = errors.New("fatal")

	// ErrUnexpected marks a packet that is valid but arrived out of sequence.
	ErrUnexpected = errors.New("unexpected packet")

	ErrNoSelection = errors.New("no selection available")
)

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFatal}, args...)...)
}

func decodeError(op fmt.Stringer, err error) error {
	return fmt.Errorf("failed to decode %s: %w", op, err)
}
