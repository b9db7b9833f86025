// Package earthengine speaks to the Earth Engine REST API. The client
// is an explicit session object: credentials, project and HTTP client
// are injected once at construction and passed by reference to every
// query, replacing the ambient process-wide initialization the original
// workflow relied on.
package earthengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"landcover-pipeline/internal/logger"
)

const (
	// DefaultBaseURL is the production Earth Engine REST endpoint
	DefaultBaseURL = "https://earthengine.googleapis.com/v1"

	// CatalogProject hosts the public data catalog assets
	CatalogProject = "projects/earthengine-public"

	// ReadScope is the OAuth scope needed for catalog reads
	ReadScope = "https://www.googleapis.com/auth/earthengine.readonly"

	// DefaultProject is the cloud project billed for compute, matching
	// the original workflow's project
	DefaultProject = "dynamic-world-pipeline"
)

// Options holds configuration for the Client
type Options struct {
	// Project is the quota/billing cloud project ID
	Project string

	// BaseURL overrides the API endpoint (tests point it at a local
	// server)
	BaseURL string

	// TokenSource overrides credential resolution
	TokenSource oauth2.TokenSource

	// HTTPClient overrides the transport. When nil a client with a
	// sane timeout and system proxy support is built.
	HTTPClient *http.Client

	// Retry overrides the rate-limit backoff strategy
	Retry *RetryStrategy

	Log *logger.Logger
}

// Client is an authenticated Earth Engine API session
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	baseURL     string
	project     string
	retry       *RetryStrategy
	log         *logger.Logger
}

// NewClient creates a client, resolving credentials from the
// environment when no token source is injected:
// GOOGLE_APPLICATION_CREDENTIALS_JSON, then
// GOOGLE_APPLICATION_CREDENTIALS, then application default credentials.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	project := opts.Project
	if project == "" {
		project = DefaultProject
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ts := opts.TokenSource
	if ts == nil {
		var err error
		ts, err = resolveTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Earth Engine credentials: %w", err)
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}

	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryStrategy()
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		httpClient:  httpClient,
		tokenSource: ts,
		baseURL:     baseURL,
		project:     project,
		retry:       retry,
		log:         log.With("component", "earthengine"),
	}, nil
}

func resolveTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds != "" && strings.HasPrefix(creds, "{") {
		c, err := google.CredentialsFromJSON(ctx, []byte(creds), ReadScope)
		if err != nil {
			return nil, err
		}
		return c.TokenSource, nil
	}
	return google.DefaultTokenSource(ctx, ReadScope)
}

// get performs an authenticated GET with rate-limit retry
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

// post performs an authenticated POST with rate-limit retry
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+path, body)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	attempt := 0
	for {
		data, retryable, err := c.doOnce(ctx, method, u, body)
		if err == nil {
			return data, nil
		}
		if !retryable || attempt >= c.retry.MaxRetries {
			return nil, err
		}
		wait := c.retry.Interval(attempt)
		attempt++
		c.log.Warn("request throttled, backing off",
			"url", u, "attempt", attempt, "wait", wait.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, u string, body []byte) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, false, fmt.Errorf("failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("X-Goog-User-Project", c.project)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return data, false, nil
	}
	return nil, isRateLimitStatus(resp.StatusCode), &APIError{
		StatusCode: resp.StatusCode,
		URL:        u,
		Body:       truncateBody(data),
	}
}

// APIError is a non-200 answer from the Earth Engine API
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("earth engine request failed with status %d: %s", e.StatusCode, e.Body)
}

func truncateBody(data []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
