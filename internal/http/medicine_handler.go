package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_pharmacy/internal/domain"
)

const defaultRecommendations = 4

// Catalog is the read side the medicine endpoints need.
type Catalog interface {
	List(ctx context.Context) ([]domain.Medicine, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Medicine, error)
	Search(ctx context.Context, query string) ([]domain.Medicine, error)
	Get(ctx context.Context, id string) (*domain.Medicine, error)
	Recommend(ctx context.Context, id string, limit int) ([]domain.Medicine, error)
}

type MedicineHandler struct {
	catalog Catalog
	timeout time.Duration
}

func NewMedicineHandler(catalog Catalog, timeout time.Duration) *MedicineHandler {
	return &MedicineHandler{catalog: catalog, timeout: timeout}
}

type MedicinesResponseDTO struct {
	Medicines []domain.Medicine `json:"medicines"`
}

// GET /api/v1/medicines?category=&q=
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	category := r.URL.Query().Get("category")
	q := r.URL.Query().Get("q")

	var list []domain.Medicine
	var err error
	switch {
	case q != "":
		list, err = h.catalog.Search(ctx, q)
		if err == nil && category != "" {
			list = filterCategory(list, category)
		}
	case category != "":
		list, err = h.catalog.ListByCategory(ctx, category)
	default:
		list, err = h.catalog.List(ctx)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MedicinesResponseDTO{Medicines: list})
}

// GET /api/v1/medicines/{id}
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// GET /api/v1/medicines/{id}/recommendations?limit=
func (h *MedicineHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := defaultRecommendations
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.catalog.Recommend(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MedicinesResponseDTO{Medicines: list})
}

func filterCategory(list []domain.Medicine, category string) []domain.Medicine {
	out := make([]domain.Medicine, 0, len(list))
	for _, m := range list {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}
