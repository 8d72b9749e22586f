package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	licenseErrors "axiscli/internal/errors"
	"axiscli/pkg/contracts/domain"
)

const (
	defaultUserAgent = "axiscli-registry/1.0"

	// DefaultMaxDocumentSize bounds a fetched registry document.
	DefaultMaxDocumentSize = 8 << 20

	maxProblemSize = 64 << 10
)

// httpOptions holds the internal configuration for an HTTPChannel.
type httpOptions struct {
	retries        int
	retryWaitMin   time.Duration
	retryWaitMax   time.Duration
	allowLocalhost bool
	userAgent      string
	bindURL        string
	maxDocument    int64
}

// HTTPOption configures an HTTPChannel.
type HTTPOption func(*httpOptions)

// WithRetries sets the number of retries for HTTP requests.
func WithRetries(retries int) HTTPOption {
	return func(o *httpOptions) {
		o.retries = retries
	}
}

// WithRetryWait sets the retry backoff bounds.
func WithRetryWait(minWait, maxWait time.Duration) HTTPOption {
	return func(o *httpOptions) {
		o.retryWaitMin = minWait
		o.retryWaitMax = maxWait
	}
}

// WithLocalhost allows plain HTTP connections to localhost addresses.
func WithLocalhost(allow bool) HTTPOption {
	return func(o *httpOptions) {
		o.allowLocalhost = allow
	}
}

// WithBindURL sets the endpoint that receives first-use bindings.
func WithBindURL(bindURL string) HTTPOption {
	return func(o *httpOptions) {
		o.bindURL = bindURL
	}
}

// WithMaxDocumentSize caps how many bytes Fetch accepts.
func WithMaxDocumentSize(n int64) HTTPOption {
	return func(o *httpOptions) {
		o.maxDocument = n
	}
}

// HTTPChannel fetches the registry from a URL, typically the raw file URL
// of the published document or the key server's /keys.json. It is read-only
// for the registry document; bindings go to the optional bind URL.
type HTTPChannel struct {
	url     string
	options httpOptions
	client  *retryablehttp.Client

	mu   sync.Mutex
	etag string
	last []byte
}

// NewHTTPChannel creates a channel for rawURL. HTTPS is required unless the
// host is localhost and WithLocalhost(true) is set.
func NewHTTPChannel(rawURL string, opts ...HTTPOption) (*HTTPChannel, error) {
	options := httpOptions{
		retries:        2,
		retryWaitMin:   500 * time.Millisecond,
		retryWaitMax:   2 * time.Second,
		allowLocalhost: true,
		userAgent:      defaultUserAgent,
		maxDocument:    DefaultMaxDocumentSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := checkURL(rawURL, options.allowLocalhost); err != nil {
		return nil, err
	}
	if options.bindURL != "" {
		if err := checkURL(options.bindURL, options.allowLocalhost); err != nil {
			return nil, err
		}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = options.retries
	client.RetryWaitMin = options.retryWaitMin
	client.RetryWaitMax = options.retryWaitMax
	client.Logger = nil

	return &HTTPChannel{url: rawURL, options: options, client: client}, nil
}

func checkURL(rawURL string, allowLocalhost bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid registry URL %q", rawURL)
	}

	isLocalhost := strings.EqualFold(parsed.Hostname(), "localhost") ||
		parsed.Hostname() == "127.0.0.1" ||
		parsed.Hostname() == "::1"

	if !strings.EqualFold(parsed.Scheme, "https") && (!isLocalhost || !allowLocalhost) {
		return errors.New("HTTPS scheme is required")
	}
	return nil
}

// Fetch performs a conditional GET. A 304 answer returns the previously
// fetched document.
func (c *HTTPChannel) Fetch(ctx context.Context) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	req.Header.Set("User-Agent", c.options.userAgent)
	req.Header.Set("Accept", "application/json")
	// raw file hosts cache aggressively
	req.Header.Set("Cache-Control", "no-cache")

	c.mu.Lock()
	etag, last := c.etag, c.last
	c.mu.Unlock()
	if etag != "" && last != nil {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if last != nil {
			return last, nil
		}
		return nil, unavailable("fetch", errors.New("304 without a cached document"))
	case http.StatusOK:
	default:
		return nil, unavailable("fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.options.maxDocument+1))
	if err != nil {
		return nil, unavailable("fetch", err)
	}
	if int64(len(body)) > c.options.maxDocument {
		return nil, unavailable("fetch", fmt.Errorf("document exceeds %d bytes", c.options.maxDocument))
	}
	if len(body) == 0 {
		return nil, unavailable("fetch", errors.New("response body is empty"))
	}
	if !json.Valid(body) {
		return nil, unavailable("fetch", errors.New("response is not JSON"))
	}

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.last = body
	c.mu.Unlock()

	return body, nil
}

// Publish is not supported by the read-only HTTP channel.
func (c *HTTPChannel) Publish(ctx context.Context, document []byte) error {
	return unavailable("publish", errors.New("http channel is read-only"))
}

// Bind posts a first-use binding to the bind URL. Without a bind URL it is
// a no-op. Authoritative rejections from the key server are returned as
// the matching license error; anything else is ErrChannelUnavailable.
func (c *HTTPChannel) Bind(ctx context.Context, key, hwid string) error {
	if c.options.bindURL == "" {
		return nil
	}

	body, err := json.Marshal(domain.BindRequest{Key: key, HWID: hwid})
	if err != nil {
		return fmt.Errorf("failed to marshal binding: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.options.bindURL, bytes.NewReader(body))
	if err != nil {
		return unavailable("bind", err)
	}
	req.Header.Set("User-Agent", c.options.userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return unavailable("bind", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var problem struct {
		ErrorCode string `json:"error_code"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxProblemSize)).Decode(&problem)

	switch problem.ErrorCode {
	case domain.ErrCodeDeviceMismatch:
		return licenseErrors.ErrDeviceMismatch
	case domain.ErrCodeRevoked:
		return licenseErrors.ErrRevoked
	case domain.ErrCodeExpiredLicense:
		return licenseErrors.ErrExpired
	}
	return unavailable("bind", fmt.Errorf("status %d %s", resp.StatusCode, problem.ErrorCode))
}
