package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/session"
)

type CheckoutHandler struct {
	sessions Sessions
	timeout  time.Duration
	maxBody  int64
}

func NewCheckoutHandler(sessions Sessions, timeout time.Duration, maxBody int64) *CheckoutHandler {
	return &CheckoutHandler{sessions: sessions, timeout: timeout, maxBody: maxBody}
}

type ConfirmCheckoutRequestDTO struct {
	SessionID string `json:"sessionId"`
}

type BeginCheckoutResponseDTO struct {
	SessionID string         `json:"sessionId"`
	URL       string         `json:"url,omitempty"`
	State     checkout.State `json:"state"`
}

type CheckoutResponseDTO struct {
	State         checkout.State          `json:"state"`
	Order         *domain.Order           `json:"order,omitempty"`
	Next          string                  `json:"next,omitempty"`
	Notifications []checkout.Notification `json:"notifications"`
	Error         string                  `json:"error,omitempty"`
	Code          string                  `json:"code,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		handle, err := s.Checkout.Begin(ctx)
		if err != nil {
			h.respondResult(w, s, checkout.Result{State: checkout.StateFailed}, err)
			return
		}
		respondJSON(w, http.StatusCreated, BeginCheckoutResponseDTO{
			SessionID: handle.ID,
			URL:       handle.URL,
			State:     s.Checkout.State(),
		})
	})
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmCheckoutRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		res, err := s.Checkout.Confirm(ctx, req.SessionID)
		h.respondResult(w, s, res, err)
	})
}

// POST /api/v1/checkout/cancel
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		res, err := s.Checkout.Cancel(ctx)
		h.respondResult(w, s, res, err)
	})
}

// respondResult always carries the pending notifications, on failure too.
func (h *CheckoutHandler) respondResult(w http.ResponseWriter, s *session.Session, res checkout.Result, err error) {
	out := CheckoutResponseDTO{
		State:         res.State,
		Order:         res.Order,
		Next:          res.Next,
		Notifications: s.Inbox.Drain(),
	}
	status := http.StatusOK
	if err != nil {
		status, out.Code = errorStatus(err)
		out.Error = err.Error()
	}
	respondJSON(w, status, out)
}

func (h *CheckoutHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *session.Session)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, err := sessionFor(ctx, h.sessions)
	if err != nil {
		handleError(w, err)
		return
	}
	_ = s.Do(func(s *session.Session) error {
		fn(ctx, s)
		return nil
	})
}
