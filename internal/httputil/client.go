// Package httputil provides the timeout-bounded HTTP client shared by the
// catalog and the extractors, plus input sanitization helpers.
package httputil

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"topster/internal/errs"
)

const (
	// DefaultTimeout bounds every request that does not set its own.
	DefaultTimeout = 30 * time.Second

	// UserAgent is the desktop browser identity sent with every request.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodySize = 10 * 1024 * 1024 // 10MB
)

var defaultHeaders = map[string]string{
	"User-Agent":                UserAgent,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Accept-Encoding":           "gzip, deflate, br",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Options tune a single request.
type Options struct {
	Headers map[string]string
	Referer string
	// XHR marks the request as an AJAX call (X-Requested-With).
	XHR     bool
	Timeout time.Duration
}

// Client performs GET requests with browser headers and typed error mapping.
// It never retries; retry policy belongs to callers.
type Client struct {
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchText performs a GET request and returns the decoded body.
func (c *Client) FetchText(ctx context.Context, rawURL string, opts Options) (string, error) {
	body, err := c.fetch(ctx, rawURL, opts, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchJSON performs a GET request and decodes the JSON body into v.
// Decode failures are reported as parse errors, distinct from transport errors.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, opts Options, v any) error {
	body, err := c.fetch(ctx, rawURL, opts, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errs.Parse(rawURL, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, rawURL string, opts Options, accept string) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, errs.Network(0, rawURL, err)
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Network(0, rawURL, fmt.Errorf("creating request: %w", err))
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if opts.XHR {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && isTimeout(reqCtx, err) {
			return nil, errs.Timeout(rawURL, err)
		}
		return nil, errs.Network(0, rawURL, err)
	}
	defer resp.Body.Close()

	c.log.Debug("http get",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, errs.Network(resp.StatusCode, rawURL, nil)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, errs.Parse(rawURL, err)
	}
	defer reader.Close()

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		if ctx.Err() == nil && isTimeout(reqCtx, err) {
			return nil, errs.Timeout(rawURL, err)
		}
		return nil, errs.Network(0, rawURL, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

// decodeBody unwraps the Content-Encoding we asked for. Setting
// Accept-Encoding by hand disables net/http's transparent gzip. HTTP
// "deflate" is the zlib format, not a raw deflate stream. Closing the
// returned reader leaves resp.Body open.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "deflate":
		return zlib.NewReader(resp.Body)
	default:
		return io.NopCloser(resp.Body), nil
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
