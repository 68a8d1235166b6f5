// Package auth verifies bearer tokens and signs users in and out.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/go_pharmacy/internal/domain"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailExists         = errors.New("email already registered")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Credentials is what a successful sign-in returns to the client.
type Credentials struct {
	Identity domain.Identity `json:"identity"`
	Token    string          `json:"token"`
}

type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (Credentials, error)
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	SignInWithFederatedProvider(ctx context.Context, providerID, idpToken string) (Credentials, error)
	SignOut(ctx context.Context, uid string) error
}

type ctxKey struct{ name string }

var ctxKeyIdentity = ctxKey{name: "identity"}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// FromContext returns the anonymous identity when none was attached.
func FromContext(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func validateSignUp(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return errors.Join(ErrInvalidInput, errors.New("email is required"))
	}
	if len(password) < 6 {
		return errors.Join(ErrInvalidInput, errors.New("password must be at least 6 characters"))
	}
	return nil
}
