package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nhle/ghwatch/internal/source"
)

const apiVersion = "2022-11-28"

// Client is a thin HTTP client for the GitHub REST API.
// It handles Bearer token authentication, JSON decoding, client-side
// request pacing, and automatic retry with exponential backoff on HTTP 429,
// secondary rate limits and 5xx responses.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a new GitHub HTTP client. The baseURL is the API root
// (https://api.github.com, or https://host/api/v3 for GitHub Enterprise).
// An empty token issues unauthenticated requests.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &source.TransientError{
				SourceType: source.SourceTypeGitHub,
				Op:         "GET " + path,
				Err:        err,
			}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &source.TransientError{
				SourceType: source.SourceTypeGitHub,
				Op:         "GET " + path,
				Err:        fmt.Errorf("reading response body: %w", readErr),
			}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &source.AuthError{
				SourceType: source.SourceTypeGitHub,
				Message: fmt.Sprintf(
					"authentication failed (401): check the token for %s", c.baseURL,
				),
			}

		case rateLimited(resp):
			lastErr = fmt.Errorf("rate limited (%d) on GET %s", resp.StatusCode, path)
			if err := sleep(ctx, retryAfterDuration(resp, attempt)); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d) on GET %s: %s", resp.StatusCode, path, apiMessage(body))
			if err := sleep(ctx, retryAfterDuration(resp, attempt)); err != nil {
				return err
			}
			continue

		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return &StatusError{StatusCode: resp.StatusCode, Path: path, Message: apiMessage(body)}
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshaling response from GET %s: %w", path, err)
		}
		return nil
	}

	return &source.TransientError{
		SourceType: source.SourceTypeGitHub,
		Op:         "GET " + path,
		Err:        fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr),
	}
}

// StatusError is returned for non-retryable, non-auth error responses.
type StatusError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github API error (%d) on GET %s: %s", e.StatusCode, e.Path, e.Message)
}

// rateLimited reports primary (403 with no remaining quota) and secondary
// (429) rate limit responses.
func rateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		(resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "")
}

func apiMessage(body []byte) string {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(body))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
