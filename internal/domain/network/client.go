// Package network is the single place where the engine talks to remote
// hosts: a GET with default headers, a timeout, and bounded retries.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Client errors.
var (
	// ErrTransport wraps connection and read failures.
	ErrTransport = errors.New("transport error")
	// ErrRateLimited marks 403/429 responses.
	ErrRateLimited = errors.New("rate limited")
	// ErrClientError marks 4xx responses that are never retried.
	ErrClientError = errors.New("client error")
	// ErrServerError marks 5xx responses.
	ErrServerError = errors.New("server error")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Is classifies the status into the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusTooManyRequests
	case ErrClientError:
		return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
	case ErrServerError:
		return e.StatusCode >= 500
	}
	return false
}

// IsRateLimited reports whether err carries a 403 or 429 status.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Config configures a Client.
type Config struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Backoff is the fixed pause between attempts.
	Backoff time.Duration
	// UserAgent is sent unless the caller supplies one.
	UserAgent string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		Backoff:   time.Second,
		UserAgent: "modkeeper",
	}
}

// Client performs GET requests with retry.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     ports.Logger
}

// NewClient creates a client.
func NewClient(config Config, logger ports.Logger) *Client {
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     ports.OrNop(logger),
	}
}

// Get fetches url and returns the body. Transport failures, 5xx and 429
// are retried up to maxRetries more times with a fixed backoff; other 4xx
// fail immediately. The last attempt's error is returned.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, maxRetries int) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, url, maxRetries, func() error {
		resp, err := c.do(ctx, url, headers)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrTransport, url, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Download streams url into dir and returns the written path. The file name
// is the last URL path segment prefixed with a unique token.
func (c *Client) Download(ctx context.Context, url, dir string, headers map[string]string, maxRetries int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, uuid.NewString()[:8]+"-"+fileNameFromURL(url))

	err := c.withRetry(ctx, url, maxRetries, func() error {
		resp, err := c.do(ctx, url, headers)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: read %s: %v", ErrTransport, url, err)
		}
		return f.Close()
	})
	if err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

func (c *Client) withRetry(ctx context.Context, url string, maxRetries int, attempt func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var err error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			c.logger.Debug(ctx, "retrying request", ports.F("url", url), ports.F("attempt", i+1), ports.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.Backoff):
			}
		}

		err = attempt()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	hasUA := false
	for k, v := range headers {
		req.Header.Set(k, v)
		if strings.EqualFold(k, "User-Agent") {
			hasUA = true
		}
	}
	if !hasUA {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return resp, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return errors.Is(err, ErrTransport)
}

func fileNameFromURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	name := url[strings.LastIndex(url, "/")+1:]
	if name == "" {
		return "download"
	}
	return name
}
