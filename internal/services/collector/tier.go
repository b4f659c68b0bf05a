package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

// attempt is the result one tier produced for one ticker.
type attempt struct {
	ticker   string
	quote    *models.PriceQuote
	outcome  models.Outcome
	err      error
	attempts int
}

func (a attempt) present() bool { return a.quote != nil && a.quote.Valid() }

// Tier is one rung of the fallback ladder. Resolve returns an entry for
// every ticker it tried; tickers it never reached may be absent.
type Tier interface {
	Name() models.QuoteSource
	Resolve(ctx context.Context, tickers []string) map[string]attempt
}

// bulkTier issues one batched request for every pending ticker.
type bulkTier struct {
	src         repository.PriceSource
	callTimeout time.Duration
}

func (t *bulkTier) Name() models.QuoteSource { return models.SourceBulk }

func (t *bulkTier) Resolve(ctx context.Context, tickers []string) map[string]attempt {
	callCtx, cancel := withTimeout(ctx, t.callTimeout)
	defer cancel()

	res := t.src.BulkQuotes(callCtx, tickers)
	out := make(map[string]attempt, len(tickers))
	for _, tk := range tickers {
		a := attempt{ticker: tk, outcome: res.Outcome, err: res.Err, attempts: 1}
		if q, ok := res.Quotes[tk]; ok && q.Valid() {
			q.Source = models.SourceBulk
			a.quote, a.outcome, a.err = &q, models.OutcomeSuccess, nil
		} else if res.Err == nil {
			// The batch succeeded but said nothing usable about this ticker;
			// that is not evidence the symbol is unknown.
			a.outcome = models.OutcomeTransient
			a.err = fmt.Errorf("missing from bulk response")
		} else {
			a.outcome = models.OutcomeTransient
		}
		out[tk] = a
	}
	return out
}

// singleTier fetches tickers individually on a bounded worker pool, each with
// its own retry policy.
type singleTier struct {
	src         repository.PriceSource
	workers     int
	retry       RetryPolicy
	callTimeout time.Duration
	log         *applogger.Logger
}

func (t *singleTier) Name() models.QuoteSource { return models.SourceSingle }

func (t *singleTier) Resolve(ctx context.Context, tickers []string) map[string]attempt {
	if len(tickers) == 0 {
		return map[string]attempt{}
	}

	workers := t.workers
	if workers > len(tickers) {
		workers = len(tickers)
	}

	jobs := make(chan string)
	// Buffered to len(tickers) so late workers never block after a deadline.
	results := make(chan attempt, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range jobs {
				results <- t.fetchWithRetry(ctx, tk)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tk := range tickers {
			select {
			case jobs <- tk:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	return collectAttempts(ctx, results, done, len(tickers))
}

// collectAttempts gathers results until want have arrived, every worker has
// exited, or ctx ends. Results already buffered when ctx ends are kept.
func collectAttempts(ctx context.Context, results <-chan attempt, done <-chan struct{}, want int) map[string]attempt {
	out := make(map[string]attempt, want)
	drain := func() map[string]attempt {
		for {
			select {
			case a := <-results:
				out[a.ticker] = a
			default:
				return out
			}
		}
	}
	for {
		select {
		case a := <-results:
			out[a.ticker] = a
			if len(out) == want {
				return out
			}
		case <-done:
			return drain()
		case <-ctx.Done():
			return drain()
		}
	}
}

func (t *singleTier) fetchWithRetry(ctx context.Context, ticker string) attempt {
	a := attempt{ticker: ticker}
	maxAttempts := t.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for n := 1; n <= maxAttempts; n++ {
		a.attempts = n
		callCtx, cancel := withTimeout(ctx, t.callTimeout)
		res := t.src.Quote(callCtx, ticker)
		cancel()

		a.outcome, a.err = res.Outcome, res.Err
		if res.Outcome == models.OutcomeSuccess && res.Quote != nil {
			q := *res.Quote
			q.Source = models.SourceSingle
			a.quote = &q
			return a
		}
		if res.Outcome == models.OutcomeSuccess {
			a.outcome, a.err = models.OutcomePermanent, errors.New("empty quote")
			return a
		}
		if !res.Outcome.Retryable() || n == maxAttempts {
			return a
		}

		wait := util.BackoffWithJitter(t.retry.BackoffMin, t.retry.BackoffMax, n)
		t.log.Debug("retrying quote",
			applogger.String("ticker", ticker),
			applogger.Int("attempt", n),
			applogger.Duration("backoff_ms", wait),
			applogger.Error(res.Err),
		)
		if err := util.SleepCtx(ctx, wait); err != nil {
			a.outcome, a.err = models.OutcomeTransient, err
			return a
		}
	}
	return a
}

// historyTier is the last resort: the most recent daily close.
type historyTier struct {
	src         repository.PriceSource
	callTimeout time.Duration
}

func (t *historyTier) Name() models.QuoteSource { return models.SourceHistory }

func (t *historyTier) Resolve(ctx context.Context, tickers []string) map[string]attempt {
	out := make(map[string]attempt, len(tickers))
	for _, tk := range tickers {
		if ctx.Err() != nil {
			break
		}
		callCtx, cancel := withTimeout(ctx, t.callTimeout)
		res := t.src.LastClose(callCtx, tk)
		cancel()

		a := attempt{ticker: tk, outcome: res.Outcome, err: res.Err, attempts: 1}
		if res.Outcome == models.OutcomeSuccess && res.Quote != nil {
			q := *res.Quote
			q.Source, q.Stale = models.SourceHistory, true
			a.quote = &q
		}
		out[tk] = a
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
