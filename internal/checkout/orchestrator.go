// Package checkout drives one checkout attempt from "proceed" to a recorded
// order through an explicit state machine.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/payment"
)

const DefaultHistoryPath = "/orderhistory"

// Cart is what the orchestrator needs from the session cart.
type Cart interface {
	Items() []domain.LineItem
	Total() float64
	RecordOrder(ctx context.Context, items []domain.LineItem, totalAmount float64, opts ...cart.OrderOption) (*domain.Order, error)
	Settle(ctx context.Context, paid []domain.LineItem)
}

// Result describes how an attempt ended. State is the terminal state
// reached before the machine reset to idle.
type Result struct {
	State   State
	Session payment.SessionHandle
	Order   *domain.Order
	Next    string
}

type attempt struct {
	handle    payment.SessionHandle
	items     []domain.LineItem
	total     float64
	startedAt time.Time
}

type Orchestrator struct {
	cart        Cart
	gateway     payment.Gateway
	confirmer   payment.Confirmer
	notifier    Notifier
	log         *zap.Logger
	historyPath string

	mu      sync.Mutex
	state   State
	current *attempt
}

type Option func(*Orchestrator)

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func WithHistoryPath(path string) Option {
	return func(o *Orchestrator) { o.historyPath = path }
}

// NewOrchestrator falls back to the gateway as confirmer when confirmer is nil,
// and to trusting the client when the gateway cannot confirm either.
func NewOrchestrator(c Cart, gateway payment.Gateway, confirmer payment.Confirmer, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:        c,
		gateway:     gateway,
		confirmer:   confirmer,
		notifier:    notifier,
		log:         zap.NewNop(),
		historyPath: DefaultHistoryPath,
		state:       StateIdle,
	}
	if o.confirmer == nil {
		if c, ok := gateway.(payment.Confirmer); ok {
			o.confirmer = c
		} else {
			o.confirmer = payment.ClientReported{}
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns the session handle awaiting confirmation, if any.
func (o *Orchestrator) Pending() (payment.SessionHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.state != StateAwaitingPaymentConfirmation {
		return payment.SessionHandle{}, false
	}
	return o.current.handle, true
}

// Begin snapshots the cart and asks the gateway for a session. An attempt
// still awaiting confirmation is abandoned first. While the gateway call is
// in flight the state is SessionRequested and a second Begin gets
// ErrCheckoutInProgress. On failure the user is notified, the machine
// returns to idle and the cart is untouched.
func (o *Orchestrator) Begin(ctx context.Context) (payment.SessionHandle, error) {
	items, total, err := o.request(ctx)
	if err != nil {
		return payment.SessionHandle{}, err
	}

	// runs without o.mu held
	handle, err := o.gateway.CreateSession(ctx, items)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.failLocked(ctx, err)
		return payment.SessionHandle{}, err
	}
	if err := o.fire(EventSessionCreated); err != nil {
		return payment.SessionHandle{}, err
	}
	o.current = &attempt{handle: handle, items: items, total: total, startedAt: time.Now()}
	o.log.Info("checkout session created",
		zap.String("session_id", handle.ID),
		zap.Int("items", len(items)),
		zap.Float64("total", total))
	return handle, nil
}

// request moves the machine to SessionRequested and snapshots the cart.
func (o *Orchestrator) request(ctx context.Context) ([]domain.LineItem, float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateSessionRequested:
		return nil, 0, ErrCheckoutInProgress
	case StateAwaitingPaymentConfirmation:
		o.log.Info("abandoning unconfirmed checkout", zap.String("session_id", o.current.handle.ID))
		o.fire(EventPaymentFailed)
		o.fire(EventReset)
		o.current = nil
	}

	if err := o.fire(EventProceed); err != nil {
		return nil, 0, err
	}

	items := o.cart.Items()
	total := o.cart.Total()
	if len(items) == 0 {
		o.failLocked(ctx, ErrEmptyCart)
		return nil, 0, ErrEmptyCart
	}
	return items, total, nil
}

// Confirm settles the pending attempt. On confirmed payment it records the
// order from the snapshot taken at Begin, then takes the paid lines out of
// the cart, then notifies. Lines added after Begin stay in the cart. Any
// failure leaves the cart untouched.
func (o *Orchestrator) Confirm(ctx context.Context, sessionID string) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateAwaitingPaymentConfirmation || o.current == nil {
		_, err := Transition(o.state, EventPaymentSucceeded)
		return Result{State: o.state}, err
	}
	at := o.current
	if sessionID != "" && sessionID != at.handle.ID {
		return Result{State: o.state, Session: at.handle}, ErrSessionMismatch
	}

	if err := o.confirmer.ConfirmSession(ctx, at.handle.ID); err != nil {
		o.failLocked(ctx, err)
		return Result{State: StateFailed, Session: at.handle}, err
	}

	order, err := o.cart.RecordOrder(ctx, at.items, at.total, cart.WithSessionID(at.handle.ID))
	if err != nil {
		o.log.Error("order not recorded after confirmed payment",
			zap.String("session_id", at.handle.ID), zap.Error(err))
		wrapped := fmt.Errorf("%w: %w", ErrOrderNotRecorded, err)
		o.failLocked(ctx, wrapped)
		return Result{State: StateFailed, Session: at.handle}, wrapped
	}

	o.fire(EventPaymentSucceeded)
	o.cart.Settle(ctx, at.items)
	o.notifier.Notify(ctx, Notification{Kind: KindSuccess, Message: "Payment successful! Your order has been placed."})
	o.fire(EventReset)
	o.current = nil

	return Result{State: StateSucceeded, Session: at.handle, Order: order, Next: o.historyPath}, nil
}

// Cancel handles the buyer returning without paying.
func (o *Orchestrator) Cancel(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateSessionRequested {
		return Result{State: o.state}, ErrCheckoutInProgress
	}
	if o.state != StateAwaitingPaymentConfirmation || o.current == nil {
		_, err := Transition(o.state, EventPaymentFailed)
		return Result{State: o.state}, err
	}
	handle := o.current.handle
	o.failLocked(ctx, ErrPaymentCancelled)
	return Result{State: StateFailed, Session: handle}, nil
}

// Checkout runs Begin and Confirm back to back for synchronous confirmers.
func (o *Orchestrator) Checkout(ctx context.Context) (Result, error) {
	handle, err := o.Begin(ctx)
	if err != nil {
		return Result{State: StateFailed}, err
	}
	return o.Confirm(ctx, handle.ID)
}

// failLocked moves the attempt through Failed back to Idle and tells the user.
func (o *Orchestrator) failLocked(ctx context.Context, cause error) {
	o.fire(EventPaymentFailed)
	o.notifier.Notify(ctx, Notification{Kind: KindFailure, Message: failureMessage(cause)})
	o.log.Warn("checkout failed", zap.Error(cause))
	o.fire(EventReset)
	o.current = nil
}

func (o *Orchestrator) fire(ev Event) error {
	next, err := Transition(o.state, ev)
	if err != nil {
		o.log.Error("rejected checkout transition", zap.Error(err))
		return err
	}
	o.log.Debug("checkout transition",
		zap.String("from", o.state.String()),
		zap.String("event", string(ev)),
		zap.String("to", next.String()))
	o.state = next
	return nil
}

func failureMessage(err error) string {
	var ge *payment.GatewayError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, ErrPaymentCancelled):
		return "Payment was cancelled. Your cart has been kept."
	case errors.Is(err, ErrOrderNotRecorded):
		return "Payment went through but we could not save your order. Please contact support."
	case errors.As(err, &ge) && ge.Message != "":
		return "Payment failed: " + ge.Message
	}
	return "Payment failed. Please try again."
}
