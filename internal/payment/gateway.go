// Package payment creates hosted checkout sessions with the payment processor
// and confirms their outcome.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_pharmacy/internal/domain"
)

var (
	ErrInvalidRequest      = errors.New("invalid payment request")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrUnavailable         = errors.New("payment gateway unavailable")
)

// SessionHandle identifies a hosted checkout session. URL is where the
// buyer completes payment.
type SessionHandle struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type Gateway interface {
	CreateSession(ctx context.Context, items []domain.LineItem) (SessionHandle, error)
}

// Confirmer reports whether a session was paid. A nil error means success.
type Confirmer interface {
	ConfirmSession(ctx context.Context, sessionID string) error
}

// GatewayError is any failure of the payment collaborator.
type GatewayError struct {
	Op      string
	Code    string
	Message string
	// Rejected is set when the processor answered and refused the request,
	// as opposed to being unreachable.
	Rejected bool
	Err      error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("payment %s failed (%s): %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("payment %s failed: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ToMinorUnits converts a major-unit price to the processor's integer
// minor units, rounding half away from zero.
func ToMinorUnits(price float64) int64 {
	return decimal.NewFromFloat(price).Shift(2).Round(0).IntPart()
}

func validateItems(items []domain.LineItem) error {
	if len(items) == 0 {
		return &GatewayError{Op: "create_session", Message: "no line items", Rejected: true, Err: ErrInvalidRequest}
	}
	for _, it := range items {
		switch {
		case it.Name == "":
			return &GatewayError{Op: "create_session", Message: "line item without a name", Rejected: true, Err: ErrInvalidRequest}
		case it.Quantity < 1:
			return &GatewayError{Op: "create_session", Message: fmt.Sprintf("%s: quantity must be at least 1", it.Name), Rejected: true, Err: ErrInvalidRequest}
		case ToMinorUnits(it.Price) <= 0:
			return &GatewayError{Op: "create_session", Message: fmt.Sprintf("%s: price must be positive", it.Name), Rejected: true, Err: ErrInvalidRequest}
		}
	}
	return nil
}

// ClientReported accepts the buyer's own report of a completed redirect.
// It is used with gateways that cannot be queried for a session's outcome.
type ClientReported struct{}

func (ClientReported) ConfirmSession(context.Context, string) error { return nil }
