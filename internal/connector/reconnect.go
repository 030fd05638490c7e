package connector

import (
	"errors"
	"math"
	"time"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/handler"
)

// ReconnectPolicy is an exponential backoff with a cap. MaxAttempts 0
// retries forever.
type ReconnectPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectPolicy mirrors the configuration defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return PolicyFromConfig(config.DefaultConfig().GetReconnect())
}

// PolicyFromConfig converts the reconnect section.
func PolicyFromConfig(rc config.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: time.Duration(rc.InitialDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(rc.MaxDelayMs) * time.Millisecond,
		Multiplier:   rc.Multiplier,
	}
}

// ShouldRetry reports whether attempt (1-based) may follow err. Fatal
// errors are never retried.
func (p ReconnectPolicy) ShouldRetry(attempt int, err error) bool {
	if errors.Is(err, handler.ErrFatal) {
		return false
	}
	return p.MaxAttempts == 0 || attempt <= p.MaxAttempts
}

// Delay returns the wait before attempt (1-based).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
