package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/domain"
)

// federatedRequestURI is echoed back by Identity Toolkit; any registered
// authorized domain works for id_token assertions.
const federatedRequestURI = "http://localhost"

// adminClient is the part of the Firebase Admin SDK this package calls.
type adminClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// NewFirebaseAuthClient uses application default credentials when credentialsFile is empty.
func NewFirebaseAuthClient(ctx context.Context, projectID, credentialsFile string) (*fbauth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app init failed: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth init failed: %w", err)
	}
	return client, nil
}

// Firebase verifies ID tokens with the Admin SDK and signs users in through
// the Identity Toolkit REST API using the project's web API key.
type Firebase struct {
	admin   adminClient
	apiKey  config.SecretFunc
	extra   []option.ClientOption
	mu      sync.Mutex
	toolkit *identitytoolkit.Service
}

func NewFirebase(admin adminClient, apiKey config.SecretFunc, toolkitOpts ...option.ClientOption) *Firebase {
	return &Firebase{admin: admin, apiKey: apiKey, extra: toolkitOpts}
}

func (f *Firebase) Verify(ctx context.Context, idToken string) (domain.Identity, error) {
	token, err := f.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return domain.Identity{}, errors.Join(ErrUnauthenticated, err)
	}
	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	return domain.Identity{
		UID:         uid,
		Email:       claim(token.Claims, "email"),
		DisplayName: claim(token.Claims, "name"),
	}, nil
}

func (f *Firebase) SignUp(ctx context.Context, email, password, displayName string) (Credentials, error) {
	if err := validateSignUp(email, password); err != nil {
		return Credentials{}, err
	}
	params := (&fbauth.UserToCreate{}).Email(strings.TrimSpace(email)).Password(password)
	if name := strings.TrimSpace(displayName); name != "" {
		params = params.DisplayName(name)
	}
	if _, err := f.admin.CreateUser(ctx, params); err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return Credentials{}, ErrEmailExists
		}
		return Credentials{}, fmt.Errorf("create user failed: %w", err)
	}
	return f.SignIn(ctx, email, password)
}

func (f *Firebase) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	svc, err := f.service(ctx)
	if err != nil {
		return Credentials{}, err
	}
	resp, err := svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             strings.TrimSpace(email),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		if isClientError(err) {
			return Credentials{}, ErrInvalidCredentials
		}
		return Credentials{}, fmt.Errorf("password sign-in failed: %w", err)
	}
	return Credentials{
		Identity: domain.Identity{UID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName},
		Token:    resp.IdToken,
	}, nil
}

// SignInWithFederatedProvider exchanges an identity provider's ID token
// (for example a Google sign-in credential) for a Firebase session.
func (f *Firebase) SignInWithFederatedProvider(ctx context.Context, providerID, idpToken string) (Credentials, error) {
	providerID = strings.TrimSpace(providerID)
	idpToken = strings.TrimSpace(idpToken)
	if providerID == "" || idpToken == "" {
		return Credentials{}, ErrInvalidInput
	}
	svc, err := f.service(ctx)
	if err != nil {
		return Credentials{}, err
	}
	body := url.Values{"id_token": {idpToken}, "providerId": {providerID}}
	resp, err := svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          body.Encode(),
		RequestUri:        federatedRequestURI,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		if isClientError(err) {
			return Credentials{}, errors.Join(ErrUnsupportedProvider, err)
		}
		return Credentials{}, fmt.Errorf("federated sign-in failed: %w", err)
	}
	name := resp.DisplayName
	if name == "" {
		name = resp.FullName
	}
	return Credentials{
		Identity: domain.Identity{UID: resp.LocalId, Email: resp.Email, DisplayName: name},
		Token:    resp.IdToken,
	}, nil
}

// SignOut revokes the user's refresh tokens. ID tokens already issued stay
// valid until they expire.
func (f *Firebase) SignOut(ctx context.Context, uid string) error {
	if err := f.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke tokens failed: %w", err)
	}
	return nil
}

func (f *Firebase) service(ctx context.Context) (*identitytoolkit.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toolkit != nil {
		return f.toolkit, nil
	}
	key, err := f.apiKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase web api key: %w", err)
	}
	opts := append([]option.ClientOption{option.WithAPIKey(key)}, f.extra...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity toolkit init failed: %w", err)
	}
	f.toolkit = svc
	return svc, nil
}

func isClientError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code >= http.StatusBadRequest && gerr.Code < http.StatusInternalServerError
}

func claim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}
