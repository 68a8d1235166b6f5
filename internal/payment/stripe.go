package payment

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/domain"
)

type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	SecretKey  config.SecretFunc
	Currency   string
	SuccessURL string
	CancelURL  string
}

// StripeGateway creates Stripe Checkout sessions in payment mode.
// The secret key is resolved on first use.
type StripeGateway struct {
	cfg         StripeConfig
	newSessions func(key string) checkoutSessions

	mu       sync.Mutex
	key      string
	sessions checkoutSessions
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	return &StripeGateway{
		cfg: cfg,
		newSessions: func(key string) checkoutSessions {
			return client.New(key, nil).CheckoutSessions
		},
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, items []domain.LineItem) (SessionHandle, error) {
	if err := validateItems(items); err != nil {
		return SessionHandle{}, err
	}
	sessions, err := g.client(ctx, "create_session")
	if err != nil {
		return SessionHandle{}, err
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, it := range items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if it.Image != "" {
			product.Images = stripe.StringSlice([]string{it.Image})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(g.cfg.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(ToMinorUnits(it.Price)),
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(g.cfg.SuccessURL),
		CancelURL:          stripe.String(g.cfg.CancelURL),
	}
	params.Context = ctx

	s, err := sessions.New(params)
	if err != nil {
		return SessionHandle{}, stripeError("create_session", err)
	}
	return SessionHandle{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) ConfirmSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &GatewayError{Op: "confirm_session", Message: "session id is required", Rejected: true, Err: ErrInvalidRequest}
	}
	sessions, err := g.client(ctx, "confirm_session")
	if err != nil {
		return err
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := sessions.Get(sessionID, params)
	if err != nil {
		return stripeError("confirm_session", err)
	}

	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return nil
	}
	return &GatewayError{
		Op:       "confirm_session",
		Code:     string(s.PaymentStatus),
		Message:  "payment has not been completed",
		Rejected: true,
		Err:      ErrPaymentNotCompleted,
	}
}

func (g *StripeGateway) client(ctx context.Context, op string) (checkoutSessions, error) {
	key, err := g.cfg.SecretKey(ctx)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "payment gateway is not configured", Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions == nil || g.key != key {
		g.sessions = g.newSessions(key)
		g.key = key
	}
	return g.sessions, nil
}

func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &GatewayError{
			Op:       op,
			Code:     string(se.Code),
			Message:  se.Msg,
			Rejected: se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500,
			Err:      err,
		}
	}
	return &GatewayError{Op: op, Err: err}
}
