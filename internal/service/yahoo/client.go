// Package yahoo adapts the Yahoo Finance JSON endpoints to the price source
// and analyst source contracts.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"StockSentinel/internal/service/ratelimit"
	applogger "StockSentinel/pkg/logger"
)

const (
	DefaultQuoteURL   = "https://query1.finance.yahoo.com"
	DefaultSummaryURL = "https://query2.finance.yahoo.com"
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	maxBodyBytes = 4 << 20
)

type Client struct {
	quoteURL   string
	summaryURL string
	userAgent  string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *applogger.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLimiter shares a per-host token bucket across clients.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(quoteURL, summaryURL string, opts ...Option) *Client {
	if quoteURL == "" {
		quoteURL = DefaultQuoteURL
	}
	if summaryURL == "" {
		summaryURL = DefaultSummaryURL
	}
	c := &Client{
		quoteURL:   strings.TrimRight(quoteURL, "/"),
		summaryURL: strings.TrimRight(summaryURL, "/"),
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        applogger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "yahoo" }

// getJSON performs a rate-limited GET and decodes the body into out. Non-2xx
// responses and undecodable bodies come back as *APIError.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s: bad url: %w", endpoint, err)
	}
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", endpoint, err)
	}

	c.log.Debug("yahoo request",
		applogger.String("endpoint", endpoint),
		applogger.Int("status", resp.StatusCode),
		applogger.Duration("took_ms", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: snippet(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    "malformed response: " + err.Error(),
			Malformed:  true,
		}
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
