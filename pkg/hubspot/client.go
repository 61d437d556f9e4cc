// Package hubspot provides a minimal client for the HubSpot CRM v3
// objects API, covering the company upsert the exporter needs.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/icp-analyzer/internal/resilience"
)

// Client defines the HubSpot operations used by the exporter.
type Client interface {
	// CreateCompany creates a company record and returns its ID.
	CreateCompany(ctx context.Context, properties map[string]string) (string, error)
}

// Option configures the HubSpot client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second rate limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetryBackoff sets the delay before the first retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.backoff = d
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	backoff time.Duration
}

// NewClient creates a new HubSpot client authenticated with a private
// app token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.hubapi.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type companyRequest struct {
	Properties map[string]string `json:"properties"`
}

type companyResponse struct {
	ID string `json:"id"`
}

func (c *httpClient) CreateCompany(ctx context.Context, properties map[string]string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/companies", companyRequest{Properties: properties})
	if err != nil {
		return "", eris.Wrap(err, "hubspot: create company")
	}
	if resp.ID == "" {
		return "", eris.New("hubspot: create company returned no id")
	}
	return resp.ID, nil
}

// do sends one JSON request with retry on transient statuses. The body
// is re-marshaled per attempt so retries never reuse a drained reader.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) (*companyResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "encode payload")
	}

	return resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: c.backoff,
		OnRetry:        resilience.RetryLogger("hubspot", method+" "+path),
	}, func(ctx context.Context) (*companyResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, eris.Wrap(err, "read response")
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				fmt.Errorf("status %d: %s", resp.StatusCode, respBody), resp.StatusCode)
		default:
			return nil, resilience.NewPermanentError(
				fmt.Errorf("status %d: %s", resp.StatusCode, respBody), resp.StatusCode)
		}

		var out companyResponse
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, eris.Wrap(err, "decode response")
			}
		}
		return &out, nil
	})
}
