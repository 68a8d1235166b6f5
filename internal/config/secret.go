package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ErrSecretMissing is returned when a secret was never configured.
var ErrSecretMissing = errors.New("secret not configured")

const secretManagerScheme = "sm://"

// Secret is either a literal value or a Secret Manager reference of the form
// sm://projects/<p>/secrets/<s>/versions/<v>.
type Secret string

// SecretFunc yields a secret value when a component needs it.
type SecretFunc func(ctx context.Context) (string, error)

// Static wraps a literal value.
func Static(value string) SecretFunc {
	return func(context.Context) (string, error) {
		if value == "" {
			return "", ErrSecretMissing
		}
		return value, nil
	}
}

// SecretResolver resolves secrets lazily and caches what it fetched.
type SecretResolver struct {
	mu     sync.Mutex
	cache  map[string]string
	client *secretmanager.Client
	fetch  func(ctx context.Context, name string) (string, error)
}

func NewSecretResolver() *SecretResolver {
	r := &SecretResolver{cache: make(map[string]string)}
	r.fetch = r.accessSecretVersion
	return r
}

// Func binds s to the resolver.
func (r *SecretResolver) Func(s Secret) SecretFunc {
	return func(ctx context.Context) (string, error) {
		return r.Resolve(ctx, s)
	}
}

func (r *SecretResolver) Resolve(ctx context.Context, s Secret) (string, error) {
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		return "", ErrSecretMissing
	}
	if !strings.HasPrefix(raw, secretManagerScheme) {
		return raw, nil
	}
	name := strings.TrimPrefix(raw, secretManagerScheme)

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[name]; ok {
		return v, nil
	}
	v, err := r.fetch(ctx, name)
	if err != nil {
		return "", err
	}
	r.cache[name] = v
	return v, nil
}

func (r *SecretResolver) accessSecretVersion(ctx context.Context, name string) (string, error) {
	if r.client == nil {
		c, err := secretmanager.NewClient(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to create secret manager client: %w", err)
		}
		r.client = c
	}
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret %s has an empty payload", name)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

func (r *SecretResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
