package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/payment"
)

type fixture struct {
	docs    *docstore.MemoryStore
	cart    *cart.Store
	gateway *mockGateway
	inbox   *Inbox
	orch    *Orchestrator
}

func setup(t *testing.T, userID string) *fixture {
	docs := docstore.NewMemoryStore()
	c := cart.NewStore(docs)
	t.Cleanup(c.Close)
	c.Hydrate(context.Background(), userID)

	gw := &mockGateway{}
	inbox := &Inbox{}
	return &fixture{
		docs:    docs,
		cart:    c,
		gateway: gw,
		inbox:   inbox,
		orch:    NewOrchestrator(c, gw, gw, inbox),
	}
}

func (f *fixture) fill(t *testing.T) {
	ctx := context.Background()
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Paracetamol", Price: 20, Image: "p.png", Availability: domain.InStock}))
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Paracetamol", Price: 20, Image: "p.png", Availability: domain.InStock}))
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Vitamin C", Price: 50, Image: "c.png", Availability: domain.InStock}))
}

func (f *fixture) orders(t *testing.T, userID string) []domain.Order {
	orders, err := cart.ListOrders(context.Background(), f.docs, userID)
	require.NoError(t, err)
	return orders
}

func TestCheckout_Success(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	snapshot := f.cart.Items()
	total := f.cart.Total()

	res, err := f.orch.Checkout(ctx)

	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, DefaultHistoryPath, res.Next)
	require.NotNil(t, res.Order)

	orders := f.orders(t, "alice")
	require.Len(t, orders, 1)
	assert.Equal(t, snapshot, orders[0].Items)
	assert.Equal(t, total, orders[0].TotalAmount)
	assert.Equal(t, 90.0, orders[0].TotalAmount)
	assert.Equal(t, "cs_test", orders[0].SessionID)

	assert.Empty(t, f.cart.Items())
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Equal(t, snapshot, f.gateway.capturedItems)

	notes := f.inbox.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindSuccess, notes[0].Kind)
}

func TestCheckout_PaymentFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	f.gateway.confirmErr = &payment.GatewayError{Op: "confirm_session", Message: "card declined", Rejected: true}
	before := f.cart.Items()

	res, err := f.orch.Checkout(ctx)

	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, f.orders(t, "alice"))
	assert.Equal(t, before, f.cart.Items())
	assert.Equal(t, StateIdle, f.orch.State())

	notes := f.inbox.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindFailure, notes[0].Kind)
	assert.Contains(t, notes[0].Message, "card declined")
}

func TestCheckout_SessionCreationFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	f.gateway.createErr = errors.New("network unreachable")
	before := f.cart.Items()

	_, err := f.orch.Begin(ctx)

	require.Error(t, err)
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Equal(t, before, f.cart.Items())
	assert.Empty(t, f.orders(t, "alice"))
	assert.Empty(t, f.gateway.confirmedIDs)
	require.Len(t, f.inbox.Drain(), 1)
}

func TestBegin_EmptyCart(t *testing.T) {
	f := setup(t, "alice")

	_, err := f.orch.Begin(context.Background())

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.gateway.createCalls)
	assert.Equal(t, StateIdle, f.orch.State())
}

func TestRedirectFlow(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)

	handle, err := f.orch.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPaymentConfirmation, f.orch.State())
	pending, ok := f.orch.Pending()
	require.True(t, ok)
	assert.Equal(t, handle, pending)

	// the cart changes while the buyer is on the payment page; the order
	// still reflects what was sent to the gateway
	f.cart.Add(ctx, domain.LineItem{Name: "Bandage", Price: 5, Availability: domain.InStock})

	res, err := f.orch.Confirm(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)

	orders := f.orders(t, "alice")
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 2)
	assert.Equal(t, 90.0, orders[0].TotalAmount)
	assert.Equal(t, []string{"cs_test"}, f.gateway.confirmedIDs)
}

func TestConfirm_SessionMismatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	_, err := f.orch.Begin(ctx)
	require.NoError(t, err)

	_, err = f.orch.Confirm(ctx, "cs_other")

	assert.ErrorIs(t, err, ErrSessionMismatch)
	assert.Equal(t, StateAwaitingPaymentConfirmation, f.orch.State())
	assert.Empty(t, f.gateway.confirmedIDs)
}

func TestConfirm_WithoutBeginIsIllegal(t *testing.T) {
	f := setup(t, "alice")

	_, err := f.orch.Confirm(context.Background(), "cs_test")

	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	before := f.cart.Items()
	_, err := f.orch.Begin(ctx)
	require.NoError(t, err)

	res, err := f.orch.Cancel(ctx)

	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateIdle, f.orch.State())
	assert.Equal(t, before, f.cart.Items())
	notes := f.inbox.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, KindFailure, notes[0].Kind)

	_, err = f.orch.Cancel(ctx)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestBegin_AbandonsPendingAttempt(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	f.gateway.nextSessionIDs = []string{"cs_1", "cs_2"}

	first, err := f.orch.Begin(ctx)
	require.NoError(t, err)
	second, err := f.orch.Begin(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = f.orch.Confirm(ctx, first.ID)
	assert.ErrorIs(t, err, ErrSessionMismatch)

	res, err := f.orch.Confirm(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, res.State)
}

type failingOrders struct {
	*cart.Store
}

func (failingOrders) RecordOrder(context.Context, []domain.LineItem, float64, ...cart.OrderOption) (*domain.Order, error) {
	return nil, errors.New("write refused")
}

func TestConfirm_OrderWriteFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	before := f.cart.Items()
	orch := NewOrchestrator(failingOrders{f.cart}, f.gateway, f.gateway, f.inbox)

	res, err := orch.Checkout(ctx)

	assert.ErrorIs(t, err, ErrOrderNotRecorded)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, before, f.cart.Items())
	assert.Equal(t, StateIdle, orch.State())
}

func TestCheckout_AnonymousClearsWithoutOrder(t *testing.T) {
	f := setup(t, "")
	f.fill(t)

	res, err := f.orch.Checkout(context.Background())

	require.NoError(t, err)
	assert.Nil(t, res.Order)
	assert.Empty(t, f.cart.Items())
}

func TestCheckout_RecordThenClear(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)

	_, err := f.orch.Checkout(ctx)
	require.NoError(t, err)

	flushCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.cart.Flush(flushCtx))

	doc, err := f.docs.Get(ctx, cart.CartsCollection, "alice")
	require.NoError(t, err)
	assert.Empty(t, docstore.Documents(doc, "items"))
	assert.Len(t, f.orders(t, "alice"), 1)
}

func TestNewOrchestrator_ConfirmerFallbacks(t *testing.T) {
	f := setup(t, "alice")

	o := NewOrchestrator(f.cart, f.gateway, nil, f.inbox)
	assert.Same(t, f.gateway, o.confirmer)

	type gatewayOnly struct{ payment.Gateway }
	o = NewOrchestrator(f.cart, gatewayOnly{f.gateway}, nil, f.inbox)
	assert.Equal(t, payment.ClientReported{}, o.confirmer)
}

func TestInbox_Drain(t *testing.T) {
	var in Inbox
	assert.Empty(t, in.Drain())

	in.Notify(context.Background(), Notification{Kind: KindSuccess, Message: "ok"})
	assert.Len(t, in.Drain(), 1)
	assert.Empty(t, in.Drain())
}

func TestConfirm_KeepsLinesAddedAfterBegin(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Paracetamol", Price: 30, Availability: domain.InStock}))

	handle, err := f.orch.Begin(ctx)
	require.NoError(t, err)
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Ibuprofen", Price: 45, Availability: domain.InStock}))
	require.True(t, f.cart.Add(ctx, domain.LineItem{Name: "Paracetamol", Price: 30, Availability: domain.InStock}))

	res, err := f.orch.Confirm(ctx, handle.ID)
	require.NoError(t, err)

	require.NotNil(t, res.Order)
	assert.Equal(t, 30.0, res.Order.TotalAmount)
	require.Len(t, res.Order.Items, 1)

	items := f.cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Paracetamol", items[0].Name)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "Ibuprofen", items[1].Name)
	assert.Equal(t, 1, items[1].Quantity)
}

func TestBegin_InProgressWhileGatewayPending(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "alice")
	f.fill(t)
	f.gateway.started = make(chan struct{})
	f.gateway.release = make(chan struct{})

	type outcome struct {
		handle payment.SessionHandle
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		h, err := f.orch.Begin(ctx)
		done <- outcome{h, err}
	}()
	<-f.gateway.started

	assert.Equal(t, StateSessionRequested, f.orch.State())
	_, err := f.orch.Begin(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = f.orch.Cancel(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = f.orch.Confirm(ctx, "cs_test")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	close(f.gateway.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, "cs_test", first.handle.ID)
	assert.Equal(t, StateAwaitingPaymentConfirmation, f.orch.State())
	assert.Equal(t, 1, f.gateway.createCalls)
}
