package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/chat"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/payment"
)

// Asker is the chat relay as seen by the prompt endpoint.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// RelayHandler serves the two endpoints the storefront front end calls
// directly: checkout session creation and the health assistant.
type RelayHandler struct {
	gateway payment.Gateway
	chat    Asker
	timeout time.Duration
	maxBody int64
}

func NewRelayHandler(gateway payment.Gateway, chat Asker, timeout time.Duration, maxBody int64) *RelayHandler {
	return &RelayHandler{gateway: gateway, chat: chat, timeout: timeout, maxBody: maxBody}
}

type CreateCheckoutSessionRequestDTO struct {
	Products []domain.LineItem `json:"products"`
}

type CreateCheckoutSessionResponseDTO struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type PromptRequestDTO struct {
	Prompt string `json:"prompt"`
}

type PromptResponseDTO struct {
	Response string `json:"response"`
}

// POST /api/create-checkout-session
func (h *RelayHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateCheckoutSessionRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	handle, err := h.gateway.CreateSession(ctx, req.Products)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CreateCheckoutSessionResponseDTO{ID: handle.ID, URL: handle.URL})
}

// POST /api/prompt-post
func (h *RelayHandler) PromptPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PromptRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	reply, err := h.chat.Ask(chat.WithSession(ctx, chatSessionKey(r)), req.Prompt)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PromptResponseDTO{Response: reply})
}

// chatSessionKey prefers the explicit header, then the signed-in user,
// then the guest cookie.
func chatSessionKey(r *http.Request) string {
	if k := r.Header.Get(ChatSessionHeader); k != "" {
		return "header:" + k
	}
	if id := auth.FromContext(r.Context()); !id.IsAnonymous() {
		return "user:" + id.UID
	}
	if g := guestIDFrom(r.Context()); g != "" {
		return "guest:" + g
	}
	return ""
}
