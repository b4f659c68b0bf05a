package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/domain/models"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/metrics"
)

type fakeSource struct {
	bulk  func(tickers []string) models.BulkResult
	quote func(ctx context.Context, ticker string, call int) models.QuoteResult
	last  func(ticker string) models.QuoteResult

	mu         sync.Mutex
	quoteCalls map[string]int
	lastCalls  map[string]int

	inflight    int32
	maxInflight int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bulk: func([]string) models.BulkResult {
			return models.BulkResult{Outcome: models.OutcomeTransient, Err: errors.New("bulk down")}
		},
		quote: func(context.Context, string, int) models.QuoteResult {
			return models.QuoteResult{Outcome: models.OutcomeTransient, Err: errors.New("429")}
		},
		last: func(string) models.QuoteResult {
			return models.QuoteResult{Outcome: models.OutcomePermanent, Err: errors.New("no history")}
		},
		quoteCalls: map[string]int{},
		lastCalls:  map[string]int{},
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) BulkQuotes(_ context.Context, tickers []string) models.BulkResult {
	return f.bulk(tickers)
}

func (f *fakeSource) Quote(ctx context.Context, ticker string) models.QuoteResult {
	n := atomic.AddInt32(&f.inflight, 1)
	for {
		m := atomic.LoadInt32(&f.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInflight, m, n) {
			break
		}
	}
	defer atomic.AddInt32(&f.inflight, -1)

	f.mu.Lock()
	f.quoteCalls[ticker]++
	call := f.quoteCalls[ticker]
	f.mu.Unlock()
	return f.quote(ctx, ticker, call)
}

func (f *fakeSource) LastClose(_ context.Context, ticker string) models.QuoteResult {
	f.mu.Lock()
	f.lastCalls[ticker]++
	f.mu.Unlock()
	return f.last(ticker)
}

func (f *fakeSource) calls(ticker string) (quote, last int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls[ticker], f.lastCalls[ticker]
}

func ok(ticker string, price float64) models.QuoteResult {
	return models.QuoteResult{
		Quote:   &models.PriceQuote{Ticker: ticker, Price: price, AsOf: time.Unix(1_700_000_000, 0)},
		Outcome: models.OutcomeSuccess,
	}
}

func testConfig() Config {
	return Config{
		Workers:     2,
		Deadline:    2 * time.Second,
		CallTimeout: time.Second,
		Retry:       RetryPolicy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 4 * time.Millisecond},
	}
}

func newCollector(src *fakeSource, cfg Config) *Collector {
	return New(src, cfg, applogger.Nop(), metrics.Nop{})
}

func TestPartialBulkFailureRetriesOnlyMissingTickers(t *testing.T) {
	src := newFakeSource()
	bulkPrices := map[string]float64{"ASML": 700, "SNY": 46, "JD": 30}
	src.bulk = func(tickers []string) models.BulkResult {
		quotes := map[string]models.PriceQuote{}
		for _, tk := range tickers {
			if p, ok := bulkPrices[tk]; ok {
				quotes[tk] = models.PriceQuote{Ticker: tk, Price: p}
			}
		}
		return models.BulkResult{Quotes: quotes, Outcome: models.OutcomeSuccess}
	}
	src.quote = func(_ context.Context, ticker string, _ int) models.QuoteResult {
		return ok(ticker, 100)
	}

	tickers := []string{"ASML", "SNY", "JD", "UNH", "XOM"}
	out := newCollector(src, testConfig()).FetchPrices(context.Background(), tickers)

	require.Len(t, out, 5)
	nonBulk := 0
	for _, tk := range tickers {
		o, present := out[tk]
		require.True(t, present, tk)
		assert.Equal(t, models.StatusOK, o.Status, tk)
		if o.Source != models.SourceBulk {
			nonBulk++
		}
	}
	assert.LessOrEqual(t, nonBulk, 2)
	assert.Equal(t, models.SourceSingle, out["UNH"].Source)
	assert.Equal(t, models.SourceSingle, out["XOM"].Source)

	q, _ := src.calls("SNY")
	assert.Zero(t, q, "bulk hits must not be refetched")
	q, _ = src.calls("UNH")
	assert.Equal(t, 1, q)
}

func TestTransientErrorsAreRetriedWithBackoff(t *testing.T) {
	src := newFakeSource()
	src.quote = func(_ context.Context, ticker string, call int) models.QuoteResult {
		if call < 3 {
			return models.QuoteResult{Outcome: models.OutcomeTransient, Err: errors.New("status 429")}
		}
		return ok(ticker, 46.123)
	}

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), []string{"SNY"})

	o := out["SNY"]
	assert.Equal(t, models.StatusOK, o.Status)
	assert.Equal(t, models.SourceSingle, o.Source)
	assert.Equal(t, 46.12, o.Quote.Price)
	assert.Equal(t, 4, o.Attempts, "one bulk attempt plus three single attempts")
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	src := newFakeSource()
	src.quote = func(context.Context, string, int) models.QuoteResult {
		return models.QuoteResult{Outcome: models.OutcomePermanent, Err: errors.New("status 404: no such symbol")}
	}

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), []string{"NOPE"})

	o := out["NOPE"]
	assert.Equal(t, models.StatusFailed, o.Status)
	assert.Contains(t, o.Error, "404")
	quoteCalls, lastCalls := src.calls("NOPE")
	assert.Equal(t, 1, quoteCalls, "permanent errors are not retried")
	assert.Zero(t, lastCalls, "permanent errors skip the history tier")
}

func TestHistoryTierDegradesOutcome(t *testing.T) {
	src := newFakeSource()
	src.last = func(ticker string) models.QuoteResult { return ok(ticker, 29.5) }

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), []string{"JD"})

	o := out["JD"]
	assert.Equal(t, models.StatusDegraded, o.Status)
	assert.Equal(t, models.SourceHistory, o.Source)
	assert.True(t, o.Quote.Stale)
	quoteCalls, _ := src.calls("JD")
	assert.Equal(t, 3, quoteCalls, "transient errors exhaust the retry budget first")
}

func TestAllTiersFailingMarksFailedButKeepsOthers(t *testing.T) {
	src := newFakeSource()
	src.quote = func(_ context.Context, ticker string, _ int) models.QuoteResult {
		if ticker == "BAD" {
			return models.QuoteResult{Outcome: models.OutcomeTransient, Err: errors.New("503")}
		}
		return ok(ticker, 10)
	}

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), []string{"BAD", "GOOD"})

	require.Len(t, out, 2)
	assert.Equal(t, models.StatusFailed, out["BAD"].Status)
	assert.Contains(t, out["BAD"].Error, "history")
	assert.Equal(t, models.StatusOK, out["GOOD"].Status)
}

func TestDeadlineMarksHungTickersFailed(t *testing.T) {
	src := newFakeSource()
	src.quote = func(ctx context.Context, ticker string, _ int) models.QuoteResult {
		if ticker == "HANG" {
			<-ctx.Done()
			return models.QuoteResult{Outcome: models.OutcomeTransient, Err: ctx.Err()}
		}
		return ok(ticker, 10)
	}
	cfg := testConfig()
	cfg.Deadline = 100 * time.Millisecond
	cfg.CallTimeout = 0

	start := time.Now()
	out := newCollector(src, cfg).FetchPrices(context.Background(), []string{"HANG", "FAST"})

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, out, 2)
	assert.Equal(t, models.StatusFailed, out["HANG"].Status)
	assert.Equal(t, "collection deadline exceeded", out["HANG"].Error)
	assert.Equal(t, models.StatusOK, out["FAST"].Status)
}

func TestWorkerPoolIsBounded(t *testing.T) {
	src := newFakeSource()
	src.quote = func(_ context.Context, ticker string, _ int) models.QuoteResult {
		time.Sleep(10 * time.Millisecond)
		return ok(ticker, 1)
	}
	tickers := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), tickers)

	assert.Len(t, out, len(tickers))
	assert.LessOrEqual(t, atomic.LoadInt32(&src.maxInflight), int32(2))
}

func TestDuplicateTickersYieldOneOutcome(t *testing.T) {
	src := newFakeSource()
	src.quote = func(_ context.Context, ticker string, _ int) models.QuoteResult { return ok(ticker, 5) }

	out := newCollector(src, testConfig()).FetchPrices(context.Background(), []string{"sny", "SNY", " SNY "})

	assert.Len(t, out, 1)
	assert.Equal(t, models.StatusOK, out["SNY"].Status)
}

func TestCollectAttemptsKeepsBufferedResultsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := make(chan attempt, 3)
	results <- attempt{ticker: "SNY", outcome: models.OutcomeSuccess}
	results <- attempt{ticker: "JD", outcome: models.OutcomeSuccess}

	out := collectAttempts(ctx, results, make(chan struct{}), 3)

	assert.Len(t, out, 2)
	assert.Contains(t, out, "SNY")
	assert.Contains(t, out, "JD")
}
