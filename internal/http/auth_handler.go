package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/auth"
)

type AuthHandler struct {
	provider auth.Provider
	timeout  time.Duration
	maxBody  int64
}

func NewAuthHandler(provider auth.Provider, timeout time.Duration, maxBody int64) *AuthHandler {
	return &AuthHandler{provider: provider, timeout: timeout, maxBody: maxBody}
}

type SignUpRequestDTO struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type SignInRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FederatedSignInRequestDTO struct {
	ProviderID string `json:"providerId"`
	IDToken    string `json:"idToken"`
}

// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignUpRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	creds, err := h.provider.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, creds)
}

// POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	creds, err := h.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, creds)
}

// POST /api/v1/auth/signin/federated
func (h *AuthHandler) SignInFederated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req FederatedSignInRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	creds, err := h.provider.SignInWithFederatedProvider(ctx, req.ProviderID, req.IDToken)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, creds)
}

// POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := auth.FromContext(r.Context())
	if id.IsAnonymous() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	if err := h.provider.SignOut(ctx, id.UID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
