package plan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for snapshot fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a snapshot body at 50 MB.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchRoomFromAPI.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) FetchOption { return func(c *fetchConfig) { c.timeout = d } }

// WithMaxRetries sets the number of attempts. Values below 1 mean one.
func WithMaxRetries(n int) FetchOption { return func(c *fetchConfig) { c.maxRetries = n } }

// WithBaseBackoff sets the delay before the first retry; it doubles after
// each further failure.
func WithBaseBackoff(d time.Duration) FetchOption { return func(c *fetchConfig) { c.baseBackoff = d } }

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) FetchOption { return func(c *fetchConfig) { c.client = client } }

// StatusError is a non-200 response from a snapshot source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.URL, e.Code)
}

// Temporary reports whether retrying the request may succeed: server errors,
// timeouts and rate limiting.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// FetchRoomFromAPI fetches the latest room snapshot from a capture device or
// exporter. The body may be any encoding DecodeRoomData accepts. Network
// errors and temporary statuses are retried with exponential backoff; client
// errors and undecodable bodies are returned at once.
func FetchRoomFromAPI(ctx context.Context, apiURL string, opts ...FetchOption) (*Room, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch room: API URL is empty")
	}

	cfg := fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	attempts := max(cfg.maxRetries, 1)
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch room: %w", ctx.Err())
			case <-time.After(cfg.baseBackoff << (attempt - 1)):
			}
		}

		body, err := get(ctx, client, apiURL)
		if se, ok := err.(*StatusError); ok && !se.Temporary() {
			return nil, fmt.Errorf("fetch room: %w", err)
		}
		if err != nil {
			lastErr = err
			continue
		}

		room, err := DecodeRoomData(body)
		if err != nil {
			return nil, fmt.Errorf("fetch room: %w", err)
		}
		return room, nil
	}

	return nil, fmt.Errorf("fetch room: all %d attempts failed: %w", attempts, lastErr)
}

// get performs one GET and returns the body.
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
