package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
	"github.com/wilketob/amztec-mcp-server/internal/token"
)

// LWAClient exchanges a long-lived refresh token for a short-lived access
// token at the Login-with-Amazon endpoint. Transient failures follow the same
// retry policy as marketplace calls.
type LWAClient struct {
	endpoint string
	http     *http.Client
	retry    RetryPolicy
	now      func() time.Time
}

func NewLWAClient(endpoint string, httpClient *http.Client, retry RetryPolicy) *LWAClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &LWAClient{endpoint: endpoint, http: httpClient, retry: retry, now: time.Now}
}

type lwaResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type lwaError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Exchange implements token.Exchanger.
func (c *LWAClient) Exchange(ctx context.Context, cs credential.Set) (token.AccessToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cs.RefreshToken},
		"client_id":     {cs.LWAAppID},
		"client_secret": {cs.LWAClientSecret},
	}
	body := form.Encode()

	var tok token.AccessToken
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(&token.AuthError{Message: err.Error()})
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			te := classifyTransport(err)
			if !te.Retriable {
				return backoff.Permanent(&token.AuthError{Message: te.Error()})
			}
			return fmt.Errorf("auth endpoint: %w", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var lr lwaResponse
			if err := json.Unmarshal(raw, &lr); err != nil || lr.AccessToken == "" {
				return backoff.Permanent(&token.AuthError{
					Status:  resp.StatusCode,
					Message: "unparseable token response",
				})
			}
			tok = token.AccessToken{
				TenantID:  cs.TenantID,
				Value:     lr.AccessToken,
				ExpiresAt: c.now().Add(time.Duration(lr.ExpiresIn) * time.Second),
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("auth endpoint status %d", resp.StatusCode)
		default:
			var le lwaError
			_ = json.Unmarshal(raw, &le)
			return backoff.Permanent(&token.AuthError{
				Status:  resp.StatusCode,
				Code:    le.Code,
				Message: le.Description,
			})
		}
	}

	if err := backoff.Retry(op, c.retry.newBackOff(ctx)); err != nil {
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			return token.AccessToken{}, authErr
		}
		// Transient failure that exhausted the budget.
		return token.AccessToken{}, &token.AuthError{Message: err.Error()}
	}
	return tok, nil
}

// Ping reports whether the auth endpoint is reachable. Any HTTP response,
// including an error status, counts as reachable.
func (c *LWAClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth endpoint unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
