// Package scrape extracts analyst consensus data from public HTML pages. The
// sources here are expensive and brittle, so the aggregator only consults
// them when structured data is insufficient.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"StockSentinel/internal/service/ratelimit"
	applogger "StockSentinel/pkg/logger"
)

// Cost is reported by every scraper so cheaper structured sources run first.
const Cost = 10

var ErrNothingParsed = errors.New("page contained no analyst data")

type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scrape %s: status %d", e.URL, e.StatusCode)
}

type Option func(*fetcher)

func WithHTTPClient(h *http.Client) Option {
	return func(f *fetcher) { f.httpClient = h }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(f *fetcher) { f.limiter = l }
}

func WithLogger(l *applogger.Logger) Option {
	return func(f *fetcher) { f.log = l }
}

func WithUserAgent(ua string) Option {
	return func(f *fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *fetcher) { f.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(f *fetcher) { f.now = now }
}

type fetcher struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *applogger.Logger
	now        func() time.Time
}

func newFetcher(baseURL string, opts []Option) fetcher {
	f := fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		timeout:    10 * time.Second,
		httpClient: &http.Client{},
		log:        applogger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f fetcher) document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: bad url: %w", err)
	}
	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("scrape %s: rate limiter: %w", u.Host, err)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("scrape %s: parse html: %w", u.Host, err)
	}
	return doc, nil
}

var (
	moneyRe   = regexp.MustCompile(`\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	decimalRe = regexp.MustCompile(`^[0-9][0-9,]*\.[0-9]+$`)
	intRe     = regexp.MustCompile(`^[0-9]+$`)
)

func parseMoney(s string) (float64, bool) {
	m := moneyRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
