package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ryosukesatoh/autumn/internal/retry"
)

const (
	// DefaultTimeout bounds every page fetch.
	DefaultTimeout = 10 * time.Second
	// MaxBodySize caps how much of a response body is read.
	MaxBodySize = int64(10 * 1024 * 1024)
	// DefaultUserAgent avoids blocks from sites that reject Go's default agent.
	DefaultUserAgent = "Mozilla/5.0 (compatible; AutumnDigest/1.0; +https://github.com/ryosukesatoh/autumn)"
)

// HTTPFetcher fetches pages over HTTP with a per-request timeout and
// optional retries on transient failures.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	retryConfig retry.Config
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the underlying HTTP client. The client's timeout is kept.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.retryConfig.MaxRetries = maxRetries
		f.retryConfig.BaseDelay = baseDelay
	}
}

// NewHTTPFetcher creates an HTTPFetcher. A non-positive timeout uses DefaultTimeout.
func NewHTTPFetcher(timeout time.Duration, opts ...Option) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
		retryConfig: retry.Config{
			MaxRetries: 0,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchPage returns the body of url. 4xx responses are not retried.
func (f *HTTPFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.WithBackoff(ctx, f.retryConfig, func(ctx context.Context) error {
		b, err := f.fetchOnce(ctx, url)
		if err != nil {
			if se, ok := err.(*StatusError); ok && !retry.HTTPStatusRetryable(se.StatusCode) {
				return retry.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("fetcher: failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
