package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_pharmacy/internal/domain"
)

// ProxyClient calls a remote relay's create-checkout-session endpoint.
type ProxyClient struct {
	endpoint string
	http     *http.Client
}

func NewProxyClient(baseURL string, timeout time.Duration) *ProxyClient {
	return &ProxyClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/create-checkout-session",
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createSessionRequest struct {
	Products []domain.LineItem `json:"products"`
}

type createSessionResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

func (p *ProxyClient) CreateSession(ctx context.Context, items []domain.LineItem) (SessionHandle, error) {
	body, err := json.Marshal(createSessionRequest{Products: items})
	if err != nil {
		return SessionHandle{}, &GatewayError{Op: "create_session", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return SessionHandle{}, &GatewayError{Op: "create_session", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return SessionHandle{}, &GatewayError{Op: "create_session", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out createSessionResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return SessionHandle{}, &GatewayError{
			Op:       "create_session",
			Code:     fmt.Sprintf("http_%d", resp.StatusCode),
			Message:  msg,
			Rejected: resp.StatusCode >= 400 && resp.StatusCode < 500,
		}
	}
	if out.ID == "" {
		return SessionHandle{}, &GatewayError{Op: "create_session", Message: "relay returned no session id"}
	}
	return SessionHandle{ID: out.ID, URL: out.URL}, nil
}
