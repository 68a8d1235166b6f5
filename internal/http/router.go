// Package http exposes the storefront over HTTP.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/payment"
)

type RouterDeps struct {
	Log      *zap.Logger
	Verifier auth.Verifier
	Provider auth.Provider
	Sessions Sessions
	Catalog  Catalog
	Docs     docstore.Store
	Gateway  payment.Gateway
	Chat     Asker

	AllowedOrigins     []string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	RelayConcurrency   int
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.RelayConcurrency <= 0 {
		d.RelayConcurrency = 8
	}

	relay := NewRelayHandler(d.Gateway, d.Chat, d.RequestTimeout, d.MaxRequestBodySize)
	authHandler := NewAuthHandler(d.Provider, d.RequestTimeout, d.MaxRequestBodySize)
	cartHandler := NewCartHandler(d.Sessions, d.Catalog, d.RequestTimeout, d.MaxRequestBodySize)
	checkoutHandler := NewCheckoutHandler(d.Sessions, d.RequestTimeout, d.MaxRequestBodySize)
	ordersHandler := NewOrdersHandler(d.Docs, d.RequestTimeout)
	medicineHandler := NewMedicineHandler(d.Catalog, d.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ChatSessionHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Endpoints called by the browser front end without authentication.
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Throttle(d.RelayConcurrency))
			r.Use(GuestMiddleware)
			r.Post("/create-checkout-session", relay.CreateCheckoutSession)
			r.Post("/prompt-post", relay.PromptPost)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier))
			r.Use(GuestMiddleware)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/signin/federated", authHandler.SignInFederated)
				r.Post("/signout", authHandler.SignOut)
			})
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{name}", cartHandler.UpdateQuantity)
				r.Delete("/items/{name}", cartHandler.RemoveItem)
			})
			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", checkoutHandler.Begin)
				r.Post("/confirm", checkoutHandler.Confirm)
				r.Post("/cancel", checkoutHandler.Cancel)
			})
			r.Get("/orders", ordersHandler.ListOrders)
			r.Route("/medicines", func(r chi.Router) {
				r.Get("/", medicineHandler.List)
				r.Get("/{id}", medicineHandler.Get)
				r.Get("/{id}/recommendations", medicineHandler.Recommendations)
			})
		})
	})

	return r
}
