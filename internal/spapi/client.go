// Package spapi talks to the Amazon Selling Partner API: request
// construction per operation, LWA bearer auth, SigV4 signing, and
// retry with exponential backoff on transient failures.
package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
	"github.com/wilketob/amztec-mcp-server/internal/token"
)

// Operation enumerates the upstream operation kinds. The set is closed.
type Operation string

const (
	OpCatalog Operation = "catalog"
	OpPricing Operation = "pricing"
	OpListing Operation = "listing"
)

// defaultMarketplace is used when a credential set carries no marketplace id
// (Amazon.de, matching the original deployment).
const defaultMarketplace = "A1PA6795UKMFR9"

// maxResponseSize caps upstream response bodies (8 MB).
const maxResponseSize = 8 << 20

// TokenSource supplies and invalidates access tokens. Implemented by the
// token manager; faked in tests.
type TokenSource interface {
	EnsureToken(ctx context.Context, cs credential.Set) (token.AccessToken, error)
	Invalidate(tenantID string)
}

// CallStats reports what a call cost, for metering and metrics.
type CallStats struct {
	Attempts int
	Status   int
}

// Options configures a Client.
type Options struct {
	Endpoint   string // SP-API base URL
	Region     string
	HTTPClient *http.Client
	Retry      RetryPolicy
	Tokens     TokenSource
}

// Client performs signed marketplace calls. Transient failures (connection
// errors, 429, 5xx) are retried with backoff; a 401 triggers exactly one
// forced token refresh before being treated as terminal.
type Client struct {
	endpoint string
	http     *http.Client
	retry    RetryPolicy
	tokens   TokenSource
	signer   *signer
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: opts.Endpoint,
		http:     httpClient,
		retry:    opts.Retry,
		tokens:   opts.Tokens,
		signer:   newSigner(opts.Region),
	}
}

// Call executes one upstream operation and returns the decoded payload.
func (c *Client) Call(ctx context.Context, cs credential.Set, tok token.AccessToken, op Operation, params map[string]string) (map[string]any, CallStats, error) {
	reqURL, err := c.buildURL(cs, op, params)
	if err != nil {
		return nil, CallStats{}, err
	}

	stats := CallStats{}
	payload, err := c.callWithRetry(ctx, cs, tok.Value, reqURL, &stats)

	// A 401 means the token was invalidated out-of-band. Force exactly one
	// refresh and retry the request once before giving up.
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status == http.StatusUnauthorized {
		c.tokens.Invalidate(cs.TenantID)
		fresh, terr := c.tokens.EnsureToken(ctx, cs)
		if terr != nil {
			return nil, stats, terr
		}
		stats.Attempts++
		payload, err = c.doOnce(ctx, cs, fresh.Value, reqURL, &stats.Status)
	}

	if err != nil {
		return nil, stats, err
	}
	return payload, stats, nil
}

func (c *Client) callWithRetry(ctx context.Context, cs credential.Set, tokenValue, reqURL string, stats *CallStats) (map[string]any, error) {
	var payload map[string]any

	op := func() error {
		stats.Attempts++
		p, err := c.doOnce(ctx, cs, tokenValue, reqURL, &stats.Status)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.Retriable {
				return err
			}
			return backoff.Permanent(err)
		}
		payload = p
		return nil
	}

	if err := backoff.Retry(op, c.retry.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return payload, nil
}

// doOnce performs a single signed request and classifies the result.
func (c *Client) doOnce(ctx context.Context, cs credential.Set, tokenValue, reqURL string, lastStatus *int) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-amz-access-token", tokenValue)

	if err := c.signer.Sign(ctx, req, cs); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	*lastStatus = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode)
	}

	var payload map[string]any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	return payload, nil
}

// buildURL constructs the operation's request URL against the configured
// endpoint. Endpoint paths are the upstream's contract.
func (c *Client) buildURL(cs credential.Set, op Operation, params map[string]string) (string, error) {
	marketplace := cs.MarketplaceID
	if marketplace == "" {
		marketplace = defaultMarketplace
	}

	switch op {
	case OpCatalog:
		sku := params["sku"]
		if sku == "" {
			return "", errors.New("catalog lookup requires sku")
		}
		q := url.Values{
			"marketplaceIds": {marketplace},
			"includedData":   {"attributes,summaries,issues,offers,fulfillmentAvailability,procurement,relationships,productTypes"},
		}
		return fmt.Sprintf("%s/listings/2021-08-01/items/%s/%s?%s",
			c.endpoint, url.PathEscape(cs.SellerID), url.PathEscape(sku), q.Encode()), nil

	case OpPricing:
		sku := params["sku"]
		if sku == "" {
			return "", errors.New("pricing lookup requires sku")
		}
		q := url.Values{
			"MarketplaceId": {marketplace},
			"Skus":          {sku},
			"ItemType":      {"Sku"},
		}
		return fmt.Sprintf("%s/products/pricing/v0/competitivePrice?%s", c.endpoint, q.Encode()), nil

	case OpListing:
		asin := params["asin"]
		if asin == "" {
			return "", errors.New("listing fetch requires asin")
		}
		q := url.Values{
			"marketplaceIds": {marketplace},
			"includedData":   {"attributes,summaries,salesRanks,images,dimensions"},
		}
		return fmt.Sprintf("%s/catalog/2022-04-01/items/%s?%s",
			c.endpoint, url.PathEscape(asin), q.Encode()), nil

	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}
