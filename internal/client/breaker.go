package client

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
)

type BreakerConfig struct {
	// ConsecutiveFailures before the breaker opens; 0 disables it.
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

// breaker guards one collaborator service. Only DownstreamUnavailable errors
// count as failures; a 404 is a valid answer.
type breaker struct {
	service string
	cb      *gobreaker.CircuitBreaker
}

func newBreaker(service string, cfg BreakerConfig, log *zap.Logger) *breaker {
	b := &breaker{service: service}
	if cfg.ConsecutiveFailures == 0 {
		return b
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, appErrors.ErrDownstreamUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("⚡ circuit breaker state change",
				zap.String("service", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return b
}

func (b *breaker) execute(fn func() (any, error)) (any, error) {
	if b.cb == nil {
		return fn()
	}
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, appErrors.NewDownstream(b.service, err)
	}
	return v, err
}
