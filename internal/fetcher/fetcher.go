package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
	DefaultMaxBodyBytes   = 10 * 1024 * 1024
)

// FetchError is returned for every transport failure and non-2xx response.
// Callers may retry it; the fetcher itself never does.
type FetchError struct {
	URL        string
	Reason     string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config controls the outbound request.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
}

// Fetcher downloads product pages. It is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger.With("component", "fetcher"),
	}
}

// WithClient swaps the underlying HTTP client, mainly for tests. The configured
// timeout is kept when the client has none.
func (f *Fetcher) WithClient(client *http.Client) *Fetcher {
	if client.Timeout == 0 {
		client.Timeout = f.config.Timeout
	}
	f.client = client
	return f
}

// Fetch performs a GET with browser-like headers and returns the body decoded
// to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Reason: "invalid request", Err: err}
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", DefaultAccept)
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		timeout := isTimeout(ctx, err)
		f.logger.Warn("Fetch failed", "url", rawURL, "timeout", timeout, "error", err)
		reason := "request failed"
		if timeout {
			reason = "request timed out"
		}
		return "", &FetchError{URL: rawURL, Reason: reason, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		f.logger.Warn("Unexpected status", "url", rawURL, "status", resp.StatusCode)
		return "", &FetchError{URL: rawURL, Reason: "unexpected status", StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		f.logger.Debug("Charset detection failed, reading raw body", "url", rawURL, "error", err)
		reader = resp.Body
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.config.MaxBodyBytes))
	if err != nil {
		timeout := isTimeout(ctx, err)
		return "", &FetchError{URL: rawURL, Reason: "reading body failed", Timeout: timeout, Err: err}
	}

	f.logger.Debug("Fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	return string(body), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
