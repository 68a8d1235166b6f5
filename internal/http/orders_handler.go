package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

type OrdersHandler struct {
	docs    docstore.Store
	timeout time.Duration
}

func NewOrdersHandler(docs docstore.Store, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{docs: docs, timeout: timeout}
}

type OrdersResponseDTO struct {
	Orders []domain.Order `json:"orders"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := cart.ListOrders(ctx, h.docs, auth.FromContext(r.Context()).UID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, OrdersResponseDTO{Orders: orders})
}
