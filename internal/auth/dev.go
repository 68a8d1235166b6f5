package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fjod/go_pharmacy/internal/domain"
)

// Dev is an in-process provider for local runs and tests. Tokens are opaque
// UUIDs that live until sign-out.
type Dev struct {
	mu     sync.RWMutex
	users  map[string]devUser // by lower-cased email
	tokens map[string]domain.Identity
	cost   int
}

type devUser struct {
	identity domain.Identity
	hash     []byte
}

func NewDev() *Dev {
	return &Dev{
		users:  make(map[string]devUser),
		tokens: make(map[string]domain.Identity),
		cost:   bcrypt.DefaultCost,
	}
}

func (d *Dev) SignUp(_ context.Context, email, password, displayName string) (Credentials, error) {
	if err := validateSignUp(email, password); err != nil {
		return Credentials{}, err
	}
	key := strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return Credentials{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[key]; ok {
		return Credentials{}, ErrEmailExists
	}
	id := domain.Identity{
		UID:         uuid.NewString(),
		DisplayName: strings.TrimSpace(displayName),
		Email:       strings.TrimSpace(email),
	}
	d.users[key] = devUser{identity: id, hash: hash}
	return d.issueLocked(id), nil
}

func (d *Dev) SignIn(_ context.Context, email, password string) (Credentials, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[key]
	if !ok {
		return Credentials{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return Credentials{}, ErrInvalidCredentials
	}
	return d.issueLocked(u.identity), nil
}

// SignInWithFederatedProvider trusts idpToken as the subject at providerID.
func (d *Dev) SignInWithFederatedProvider(_ context.Context, providerID, idpToken string) (Credentials, error) {
	providerID = strings.TrimSpace(providerID)
	idpToken = strings.TrimSpace(idpToken)
	if providerID == "" || idpToken == "" {
		return Credentials{}, ErrInvalidInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := domain.Identity{UID: providerID + ":" + idpToken, DisplayName: idpToken}
	return d.issueLocked(id), nil
}

// SignOut invalidates every token issued to uid.
func (d *Dev) SignOut(_ context.Context, uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for token, id := range d.tokens {
		if id.UID == uid {
			delete(d.tokens, token)
		}
	}
	return nil
}

func (d *Dev) Verify(_ context.Context, token string) (domain.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.tokens[token]
	if !ok {
		return domain.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

func (d *Dev) issueLocked(id domain.Identity) Credentials {
	token := uuid.NewString()
	d.tokens[token] = id
	return Credentials{Identity: id, Token: token}
}
