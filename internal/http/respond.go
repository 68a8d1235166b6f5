package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/catalog"
	"github.com/fjod/go_pharmacy/internal/chat"
	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/payment"
	"github.com/fjod/go_pharmacy/internal/session"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON writes the error response itself and reports whether the body
// was decoded.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, into interface{}) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func handleError(w http.ResponseWriter, err error) {
	httpStatus, code := errorStatus(err)
	respondError(w, httpStatus, code, err.Error())
}

// errorStatus converts package errors to HTTP status codes.
func errorStatus(err error) (httpStatus int, code string) {
	var ge *payment.GatewayError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		httpStatus, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, auth.ErrEmailExists):
		httpStatus, code = http.StatusConflict, "already_exists"
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrUnsupportedProvider):
		httpStatus, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, chat.ErrPromptTooLong):
		httpStatus, code = http.StatusBadRequest, "invalid_prompt"
	case errors.Is(err, checkout.ErrEmptyCart):
		httpStatus, code = http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, checkout.ErrCheckoutInProgress), errors.Is(err, checkout.ErrIllegalTransition):
		httpStatus, code = http.StatusConflict, "checkout_state"
	case errors.Is(err, checkout.ErrSessionMismatch):
		httpStatus, code = http.StatusConflict, "session_mismatch"
	case errors.Is(err, checkout.ErrOrderNotRecorded):
		httpStatus, code = http.StatusInternalServerError, "order_not_recorded"
	case errors.Is(err, payment.ErrPaymentNotCompleted):
		httpStatus, code = http.StatusPaymentRequired, "payment_not_completed"
	case errors.Is(err, payment.ErrUnavailable):
		httpStatus, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.As(err, &ge) && ge.Rejected:
		httpStatus, code = http.StatusBadRequest, "payment_rejected"
	case errors.As(err, &ge):
		httpStatus, code = http.StatusBadGateway, "payment_failed"
	case errors.Is(err, config.ErrSecretMissing):
		httpStatus, code = http.StatusBadGateway, "not_configured"
	case errors.Is(err, session.ErrNoSessionKey):
		httpStatus, code = http.StatusBadRequest, "no_session"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
	}
	return httpStatus, code
}
