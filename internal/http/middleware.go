package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/logger"
)

const (
	GuestCookie       = "guest_id"
	ChatSessionHeader = "X-Chat-Session"
)

type ctxKey struct{ name string }

var ctxKeyGuest = ctxKey{name: "guest_id"}

// AuthMiddleware attaches the verified identity when a bearer token is sent.
// Requests without a token continue as anonymous; a bad token is rejected.
func AuthMiddleware(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := auth.BearerToken(header)
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// GuestMiddleware gives anonymous visitors a stable id through a cookie.
func GuestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).IsAnonymous() {
			next.ServeHTTP(w, r)
			return
		}
		var guestID string
		if c, err := r.Cookie(GuestCookie); err == nil && c.Value != "" {
			guestID = c.Value
		} else {
			guestID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     GuestCookie,
				Value:    guestID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), ctxKeyGuest, guestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func guestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyGuest).(string)
	return id
}

// RequestLogger writes one access log line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Ctx(r.Context(), log).Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
