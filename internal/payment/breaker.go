package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/domain"
)

type BreakerSettings struct {
	Name             string
	ConsecutiveFails uint32
	OpenTimeout      time.Duration
	CallTimeout      time.Duration
}

// Breaker guards a gateway with a circuit breaker and a per-call timeout.
// Refusals from the processor do not count as failures.
type Breaker struct {
	gateway   Gateway
	confirmer Confirmer
	timeout   time.Duration

	sessions *gobreaker.CircuitBreaker[SessionHandle]
	confirms *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps gateway. If gateway also implements Confirmer, so does
// the returned Breaker.
func NewBreaker(gateway Gateway, s BreakerSettings, log *zap.Logger) *Breaker {
	if s.ConsecutiveFails == 0 {
		s.ConsecutiveFails = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			var ge *GatewayError
			return err == nil || (errors.As(err, &ge) && ge.Rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("payment breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	b := &Breaker{
		gateway:  gateway,
		timeout:  s.CallTimeout,
		sessions: gobreaker.NewCircuitBreaker[SessionHandle](st),
		confirms: gobreaker.NewCircuitBreaker[struct{}](st),
	}
	if c, ok := gateway.(Confirmer); ok {
		b.confirmer = c
	}
	return b
}

func (b *Breaker) CreateSession(ctx context.Context, items []domain.LineItem) (SessionHandle, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	h, err := b.sessions.Execute(func() (SessionHandle, error) {
		return b.gateway.CreateSession(ctx, items)
	})
	return h, breakerError("create_session", err)
}

func (b *Breaker) ConfirmSession(ctx context.Context, sessionID string) error {
	if b.confirmer == nil {
		return &GatewayError{Op: "confirm_session", Message: "gateway cannot confirm sessions", Err: ErrUnavailable}
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.confirms.Execute(func() (struct{}, error) {
		return struct{}{}, b.confirmer.ConfirmSession(ctx, sessionID)
	})
	return breakerError("confirm_session", err)
}

func (b *Breaker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func breakerError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &GatewayError{Op: op, Message: "payment gateway temporarily unavailable", Err: errors.Join(ErrUnavailable, err)}
	}
	return err
}
