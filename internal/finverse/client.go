package finverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/frahmantamala/finverse-reconciler/internal/core/datamodel/finverse"
	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
)

const DefaultBaseURL = "https://api.prod.finverse.net"

// maxErrorBody caps how much of a failed response is kept for logs.
const maxErrorBody = 4096

// APIError is a non-2xx answer from Finverse.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finverse %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client calls the Finverse customer API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      baseURL,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// ClientID identifies the credential this client exchanges for.
func (c *Client) ClientID() string {
	return c.clientID
}

// ExchangeCredential trades the client id and secret for a bearer token.
func (c *Client) ExchangeCredential(ctx context.Context) (*Credential, error) {
	reqBody, err := json.Marshal(types.TokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    types.GrantTypeClientCredentials,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/customer/token", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	var tokenResp types.TokenResponse
	if err := c.do(httpReq, "token", &tokenResp); err != nil {
		return nil, err
	}

	if tokenResp.AccessToken == "" {
		metrics.RemoteCallErrorsTotal.WithLabelValues("finverse", "token").Inc()
		return nil, fmt.Errorf("finverse token response has no access_token")
	}

	cred := &Credential{AccessToken: tokenResp.AccessToken}
	if exp, ok := TokenExpiry(tokenResp.AccessToken); ok {
		cred.ExpiresAt = exp
	} else if tokenResp.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	c.logger.Info("finverse token exchanged", "expires_at", cred.ExpiresAt)
	return cred, nil
}

// GetPayment fetches the authoritative payment snapshot.
func (c *Client) GetPayment(ctx context.Context, token string, paymentID string) (*types.Payment, error) {
	endpoint := fmt.Sprintf("%s/payments/%s", c.baseURL, url.PathEscape(paymentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	var payment types.Payment
	if err := c.do(httpReq, "get_payment", &payment); err != nil {
		c.logger.Error("failed to fetch finverse payment", "payment_id", paymentID, "error", err)
		return nil, err
	}

	return &payment, nil
}

func (c *Client) do(req *http.Request, operation string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteCallErrorsTotal.WithLabelValues("finverse", operation).Inc()
		return fmt.Errorf("finverse %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteCallErrorsTotal.WithLabelValues("finverse", operation).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("finverse returned error status",
			"operation", operation,
			"status", resp.StatusCode)
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		metrics.RemoteCallErrorsTotal.WithLabelValues("finverse", operation).Inc()
		return fmt.Errorf("failed to decode finverse %s response: %w", operation, err)
	}

	return nil
}
