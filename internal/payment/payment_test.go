package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/domain"
)

type fakeSessions struct {
	newParams *stripe.CheckoutSessionParams
	newErr    error
	status    stripe.CheckoutSessionPaymentStatus
	getErr    error
	gotID     string
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.newParams = params
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.gotID = id
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &stripe.CheckoutSession{ID: id, PaymentStatus: f.status}, nil
}

func newTestStripe(fake *fakeSessions, key string) *StripeGateway {
	g := NewStripeGateway(StripeConfig{
		SecretKey:  config.Static(key),
		SuccessURL: "http://localhost:5173/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "http://localhost:5173/checkout/cancel",
	})
	g.newSessions = func(string) checkoutSessions { return fake }
	return g
}

func items() []domain.LineItem {
	return []domain.LineItem{
		{Name: "Paracetamol", Price: 20, Image: "p.png", Quantity: 2, Availability: domain.InStock},
		{Name: "Cough Syrup", Price: 49.99, Quantity: 1, Availability: domain.InStock},
	}
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2000), ToMinorUnits(20))
	assert.Equal(t, int64(4999), ToMinorUnits(49.99))
	assert.Equal(t, int64(1), ToMinorUnits(0.005))
	assert.Equal(t, int64(1010), ToMinorUnits(10.1))
	assert.Equal(t, int64(0), ToMinorUnits(0))
}

func TestStripe_CreateSessionConvertsOnce(t *testing.T) {
	fake := &fakeSessions{}
	g := newTestStripe(fake, "sk_test")

	h, err := g.CreateSession(context.Background(), items())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", h.ID)
	assert.NotEmpty(t, h.URL)

	p := fake.newParams
	require.NotNil(t, p)
	assert.Equal(t, "payment", *p.Mode)
	require.Len(t, p.LineItems, 2)

	first := p.LineItems[0]
	assert.Equal(t, "inr", *first.PriceData.Currency)
	assert.Equal(t, int64(2000), *first.PriceData.UnitAmount)
	assert.Equal(t, int64(2), *first.Quantity)
	assert.Equal(t, "Paracetamol", *first.PriceData.ProductData.Name)
	assert.Equal(t, []*string{stripe.String("p.png")}, first.PriceData.ProductData.Images)

	second := p.LineItems[1]
	assert.Equal(t, int64(4999), *second.PriceData.UnitAmount)
	assert.Nil(t, second.PriceData.ProductData.Images)
}

func TestStripe_MissingKeyFailsAtCallTime(t *testing.T) {
	g := newTestStripe(&fakeSessions{}, "")

	_, err := g.CreateSession(context.Background(), items())

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.ErrorIs(t, err, config.ErrSecretMissing)
	assert.False(t, ge.Rejected)
}

func TestStripe_RejectsMalformedItems(t *testing.T) {
	fake := &fakeSessions{}
	g := newTestStripe(fake, "sk_test")

	_, err := g.CreateSession(context.Background(), []domain.LineItem{{Name: "x", Price: 10, Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = g.CreateSession(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, fake.newParams)
}

func TestStripe_UpstreamRejection(t *testing.T) {
	fake := &fakeSessions{newErr: &stripe.Error{Code: stripe.ErrorCode("parameter_invalid_empty"), Msg: "bad item", HTTPStatusCode: 400}}
	g := newTestStripe(fake, "sk_test")

	_, err := g.CreateSession(context.Background(), items())

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Rejected)
	assert.Equal(t, "bad item", ge.Message)
}

func TestStripe_ConfirmSession(t *testing.T) {
	ctx := context.Background()

	paid := &fakeSessions{status: stripe.CheckoutSessionPaymentStatusPaid}
	require.NoError(t, newTestStripe(paid, "sk").ConfirmSession(ctx, "cs_1"))
	assert.Equal(t, "cs_1", paid.gotID)

	unpaid := &fakeSessions{status: stripe.CheckoutSessionPaymentStatusUnpaid}
	err := newTestStripe(unpaid, "sk").ConfirmSession(ctx, "cs_2")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	err = newTestStripe(paid, "sk").ConfirmSession(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

type flakyGateway struct {
	calls int
	err   error
}

func (f *flakyGateway) CreateSession(context.Context, []domain.LineItem) (SessionHandle, error) {
	f.calls++
	if f.err != nil {
		return SessionHandle{}, f.err
	}
	return SessionHandle{ID: "ok"}, nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	gw := &flakyGateway{err: &GatewayError{Op: "create_session", Err: errors.New("connection reset")}}
	b := NewBreaker(gw, BreakerSettings{Name: "stripe", ConsecutiveFails: 2, OpenTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.CreateSession(context.Background(), items())
		require.Error(t, err)
	}
	_, err := b.CreateSession(context.Background(), items())

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, gw.calls)
}

func TestBreaker_RejectionsDoNotTrip(t *testing.T) {
	gw := &flakyGateway{err: &GatewayError{Op: "create_session", Rejected: true, Err: ErrInvalidRequest}}
	b := NewBreaker(gw, BreakerSettings{Name: "stripe", ConsecutiveFails: 1}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := b.CreateSession(context.Background(), items())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Equal(t, 3, gw.calls)
}

func TestBreaker_ConfirmRequiresConfirmer(t *testing.T) {
	b := NewBreaker(&flakyGateway{}, BreakerSettings{}, zap.NewNop())
	assert.ErrorIs(t, b.ConfirmSession(context.Background(), "cs"), ErrUnavailable)

	sb := NewSandbox("", nil)
	h, err := sb.CreateSession(context.Background(), items())
	require.NoError(t, err)
	wrapped := NewBreaker(sb, BreakerSettings{}, zap.NewNop())
	assert.NoError(t, wrapped.ConfirmSession(context.Background(), h.ID))
}

func TestProxyClient(t *testing.T) {
	var got createSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/create-checkout-session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_remote"})
	}))
	defer srv.Close()

	p := NewProxyClient(srv.URL+"/", time.Second)
	h, err := p.CreateSession(context.Background(), items())

	require.NoError(t, err)
	assert.Equal(t, "cs_remote", h.ID)
	require.Len(t, got.Products, 2)
	assert.Equal(t, 20.0, got.Products[0].Price)
}

func TestProxyClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "stripe unreachable"})
	}))
	defer srv.Close()

	_, err := NewProxyClient(srv.URL, time.Second).CreateSession(context.Background(), items())

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "stripe unreachable", ge.Message)
	assert.False(t, ge.Rejected)
}

type fixedOutcome string

func (f fixedOutcome) Decide() string { return string(f) }

func TestSandbox(t *testing.T) {
	ctx := context.Background()

	ok := NewSandbox("http://shop/checkout/success", nil)
	h, err := ok.CreateSession(ctx, items())
	require.NoError(t, err)
	assert.Contains(t, h.URL, "session_id="+h.ID)
	assert.NoError(t, ok.ConfirmSession(ctx, h.ID))
	assert.Len(t, ok.Created(), 1)

	declined := NewSandbox("", fixedOutcome("card_declined"))
	h, err = declined.CreateSession(ctx, items())
	require.NoError(t, err)
	err = declined.ConfirmSession(ctx, h.ID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	assert.ErrorIs(t, ok.ConfirmSession(ctx, "cs_unknown"), ErrInvalidRequest)
}

func TestDecide(t *testing.T) {
	assert.Equal(t, "", decide(10, 95))
	assert.NotEmpty(t, decide(97, 95))
	assert.Equal(t, "", decide(99, 100))
	assert.NotEmpty(t, decide(0, 0))
}

func TestRandomOutcome_Bounds(t *testing.T) {
	all := RandomOutcome{SuccessPercent: 100}
	none := RandomOutcome{SuccessPercent: 0}
	for i := 0; i < 1000; i++ {
		require.Equal(t, "", all.Decide())
		require.NotEmpty(t, none.Decide())
	}
}

func TestNewOutcome(t *testing.T) {
	assert.Equal(t, AlwaysApprove{}, NewOutcome(100))
	assert.Equal(t, AlwaysApprove{}, NewOutcome(150))
	assert.Equal(t, RandomOutcome{SuccessPercent: 80}, NewOutcome(80))
}
