package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/session"
)

// Sessions hands out the caller's session.
type Sessions interface {
	Get(ctx context.Context, id domain.Identity, guestID string) (*session.Session, error)
}

func sessionFor(ctx context.Context, sessions Sessions) (*session.Session, error) {
	return sessions.Get(ctx, auth.FromContext(ctx), guestIDFrom(ctx))
}

// MedicineLookup resolves the catalog entry behind a cart line.
type MedicineLookup interface {
	Get(ctx context.Context, id string) (*domain.Medicine, error)
}

type CartHandler struct {
	sessions  Sessions
	medicines MedicineLookup
	timeout   time.Duration
	maxBody   int64
}

func NewCartHandler(sessions Sessions, medicines MedicineLookup, timeout time.Duration, maxBody int64) *CartHandler {
	return &CartHandler{sessions: sessions, medicines: medicines, timeout: timeout, maxBody: maxBody}
}

// AddItemRequestDTO names a catalog medicine. Name, price, image and
// availability of the line always come from the catalog.
type AddItemRequestDTO struct {
	ID string `json:"id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartResponseDTO struct {
	Items   []domain.LineItem `json:"items"`
	Total   float64           `json:"total"`
	Count   int               `json:"count"`
	Version int64             `json:"version"`
	Added   *bool             `json:"added,omitempty"`
	Message string            `json:"message,omitempty"`
}

func cartView(s *session.Session) CartResponseDTO {
	return CartResponseDTO{
		Items:   s.Cart.Items(),
		Total:   s.Cart.Total(),
		Count:   s.Cart.Len(),
		Version: s.Cart.Version(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		respondJSON(w, http.StatusOK, cartView(s))
	})
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_id", "medicine id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	medicine, err := h.medicines.Get(ctx, req.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		added := s.Cart.Add(ctx, medicine.LineItem())
		view := cartView(s)
		view.Added = &added
		if !added {
			view.Message = "This item is out of stock."
		}
		respondJSON(w, http.StatusOK, view)
	})
}

// PUT /api/v1/cart/items/{name}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	name, ok := itemName(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		s.Cart.UpdateQuantity(ctx, name, *req.Quantity)
		respondJSON(w, http.StatusOK, cartView(s))
	})
}

// DELETE /api/v1/cart/items/{name}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	name, ok := itemName(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		s.Cart.Remove(ctx, name)
		respondJSON(w, http.StatusOK, cartView(s))
	})
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *session.Session) {
		s.Cart.Clear(ctx)
		respondJSON(w, http.StatusOK, cartView(s))
	})
}

func (h *CartHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *session.Session)) {
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

func itemName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.TrimSpace(name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_name", "item name is required")
		return "", false
	}
	return name, true
}
