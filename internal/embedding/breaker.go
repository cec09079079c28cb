package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/models"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerSettings configures Breaker. Zero fields take defaults.
type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// Breaker wraps a Backend with a circuit breaker. After MaxFailures
// consecutive failures it stops calling the backend for Timeout and answers
// with backend unavailable instead. Rejected input does not count as a
// failure, and calls the caller gave up on are not counted at all.
type Breaker struct {
	inner   Backend
	breaker *gobreaker.CircuitBreaker[Outcome]
}

// NewBreaker wraps inner.
func NewBreaker(inner Backend, s BreakerSettings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = defaultBreakerMaxFailures
	}
	if s.Timeout == 0 {
		s.Timeout = defaultBreakerTimeout
	}
	if s.Interval == 0 {
		s.Interval = defaultBreakerInterval
	}
	cb := gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        "backend:" + inner.ID().String(),
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err) == models.KindInvalidInput
		},
		IsExcluded: func(err error) bool {
			var gone *callerGone
			return errors.As(err, &gone)
		},
	})
	return &Breaker{inner: inner, breaker: cb}
}

func (b *Breaker) ID() models.Backend { return b.inner.ID() }
func (b *Breaker) Model() string      { return b.inner.Model() }
func (b *Breaker) Dimensions() int    { return b.inner.Dimensions() }
func (b *Breaker) Close() error       { return b.inner.Close() }

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }

func (b *Breaker) Embed(ctx context.Context, text string) (Outcome, error) {
	out, err := b.breaker.Execute(func() (Outcome, error) {
		out, err := b.inner.Embed(ctx, text)
		if CallerEnded(ctx, err) {
			return out, &callerGone{err: err}
		}
		return out, err
	})
	var gone *callerGone
	if errors.As(err, &gone) {
		return out, gone.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Outcome{}, Unavailable(b.inner.ID(), fmt.Errorf("circuit open: %w", err))
	}
	return out, err
}

// callerGone carries a failure caused by the caller's context so the breaker
// leaves it out of its counts.
type callerGone struct{ err error }

func (e *callerGone) Error() string { return e.err.Error() }
func (e *callerGone) Unwrap() error { return e.err }
