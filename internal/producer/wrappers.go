package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// WithTimeout bounds every call to p by d. A deadline hit is reported as
// ErrProducerTimeout; cancellation of the parent context is passed through.
func WithTimeout(p Producer, d time.Duration) Producer {
	if d <= 0 {
		return p
	}
	return Func(func(ctx context.Context, req Request) (Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		res, err := p.Produce(callCtx, req)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("%w after %s", ErrProducerTimeout, d)
		}
		return res, err
	})
}

// BreakerSettings configures WithCircuitBreaker.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the breaker once reached.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// WithCircuitBreaker stops calling p after repeated failures so a broken
// provider fails jobs fast instead of holding each one for a full timeout.
func WithCircuitBreaker(p Producer, settings BreakerSettings) Producer {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = time.Minute
	}
	log := settings.Logger
	if log == nil {
		log = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("producer circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return Func(func(ctx context.Context, req Request) (Result, error) {
		out, err := cb.Execute(func() (interface{}, error) {
			return p.Produce(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return Result{}, fmt.Errorf("%w: %s", ErrCircuitOpen, settings.Name)
			}
			return Result{}, err
		}
		return out.(Result), nil
	})
}
