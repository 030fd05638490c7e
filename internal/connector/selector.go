package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/realmwalker-project/realmwalker/internal/handler"
)

var (
	// ErrNoPendingChoice is returned when a selection arrives while nothing
	// of that kind is being asked.
	ErrNoPendingChoice = errors.New("no pending choice")
	// ErrUnknownOption is returned for a name that is not offered.
	ErrUnknownOption = errors.New("unknown option")
)

// Selector implements handler.Chooser. Choose publishes the request and
// blocks until the CLI or API answers through SelectRealm or
// SelectCharacter, or until ctx ends.
type Selector struct {
	publish func(handler.ChoiceRequest)

	mu      sync.Mutex
	pending *pendingChoice
}

type pendingChoice struct {
	req    handler.ChoiceRequest
	answer chan int
}

// NewSelector creates a selector. publish is called with every request
// before Choose starts waiting.
func NewSelector(publish func(handler.ChoiceRequest)) *Selector {
	if publish == nil {
		publish = func(handler.ChoiceRequest) {}
	}
	return &Selector{publish: publish}
}

func (s *Selector) Choose(ctx context.Context, req handler.ChoiceRequest) (int, error) {
	p := &pendingChoice{req: req, answer: make(chan int, 1)}

	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	s.publish(req)

	select {
	case idx := <-p.answer:
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Pending returns the open request, if any.
func (s *Selector) Pending() (handler.ChoiceRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return handler.ChoiceRequest{}, false
	}
	return s.pending.req, true
}

// SelectRealm answers a pending realm choice by name or 1-based number.
func (s *Selector) SelectRealm(name string) error {
	return s.answer(handler.ChoiceRealm, name)
}

// SelectCharacter answers a pending character choice by name or 1-based
// number.
func (s *Selector) SelectCharacter(name string) error {
	return s.answer(handler.ChoiceCharacter, name)
}

func (s *Selector) answer(kind handler.ChoiceKind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	if p == nil || p.req.Kind != kind {
		return fmt.Errorf("%w: %s", ErrNoPendingChoice, kind)
	}

	idx := -1
	for i, opt := range p.req.Options {
		if strings.EqualFold(opt, strings.TrimSpace(name)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(name)); err == nil && n >= 1 && n <= len(p.req.Options) {
			idx = n - 1
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, kind, name)
	}

	select {
	case p.answer <- idx:
	default:
		// already answered
	}
	s.pending = nil
	return nil
}
