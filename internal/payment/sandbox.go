package payment

import (
	"context"
	"math/rand"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/go_pharmacy/internal/domain"
)

// Outcome decides how a sandbox session ends. A non-empty reason declines it.
type Outcome interface {
	Decide() (declineReason string)
}

var declineReasons = []string{
	"card_declined",
	"insufficient_funds",
	"expired_card",
	"incorrect_cvc",
	"processing_error",
}

// RandomOutcome approves SuccessPercent of sessions. 100 approves all of
// them and 0 declines all of them.
type RandomOutcome struct {
	SuccessPercent int
}

func (r RandomOutcome) Decide() string {
	return decide(rand.Intn(100), r.SuccessPercent)
}

func decide(roll, successPercent int) string {
	if roll < successPercent {
		return ""
	}
	return declineReasons[roll%len(declineReasons)]
}

// AlwaysApprove is the outcome used by local runs and tests.
type AlwaysApprove struct{}

func (AlwaysApprove) Decide() string { return "" }

// NewOutcome picks the sandbox outcome for a configured success rate.
func NewOutcome(successPercent int) Outcome {
	if successPercent >= 100 {
		return AlwaysApprove{}
	}
	return RandomOutcome{SuccessPercent: successPercent}
}

// Sandbox is an in-process gateway for running the storefront without a
// processor account. Sessions are settled when they are created.
type Sandbox struct {
	successURL string
	outcome    Outcome

	mu       sync.Mutex
	sessions map[string]string
	created  [][]domain.LineItem
}

func NewSandbox(successURL string, outcome Outcome) *Sandbox {
	if outcome == nil {
		outcome = AlwaysApprove{}
	}
	return &Sandbox{
		successURL: successURL,
		outcome:    outcome,
		sessions:   make(map[string]string),
	}
}

func (s *Sandbox) CreateSession(_ context.Context, items []domain.LineItem) (SessionHandle, error) {
	if err := validateItems(items); err != nil {
		return SessionHandle{}, err
	}

	id := "cs_sandbox_" + uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = s.outcome.Decide()
	s.created = append(s.created, domain.CloneItems(items))
	s.mu.Unlock()

	u := s.successURL
	if parsed, err := url.Parse(s.successURL); err == nil && u != "" {
		q := parsed.Query()
		q.Set("session_id", id)
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}
	return SessionHandle{ID: id, URL: u}, nil
}

func (s *Sandbox) ConfirmSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	reason, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if !ok {
		return &GatewayError{Op: "confirm_session", Code: "resource_missing", Message: "no such session", Rejected: true, Err: ErrInvalidRequest}
	}
	if reason != "" {
		return &GatewayError{Op: "confirm_session", Code: reason, Message: "payment was declined", Rejected: true, Err: ErrPaymentNotCompleted}
	}
	return nil
}

// Created returns the line items of every session created so far.
func (s *Sandbox) Created() [][]domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.LineItem, len(s.created))
	copy(out, s.created)
	return out
}
