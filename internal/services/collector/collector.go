// Package collector fetches current prices through an ordered fallback
// ladder: one batched request, then bounded per-ticker retries, then a
// last-close lookup.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

type Config struct {
	Workers     int
	Deadline    time.Duration // hard ceiling for the whole collection
	CallTimeout time.Duration // per network call
	Retry       RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Workers:     4,
		Deadline:    45 * time.Second,
		CallTimeout: 10 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BackoffMin:  500 * time.Millisecond,
			BackoffMax:  8 * time.Second,
		},
	}
}

type Collector struct {
	tiers    []Tier
	deadline time.Duration
	log      *applogger.Logger
	metrics  repository.Metrics
}

// New builds the standard bulk → single → history ladder over src.
func New(src repository.PriceSource, cfg Config, l *applogger.Logger, m repository.Metrics) *Collector {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	tiers := []Tier{
		&bulkTier{src: src, callTimeout: cfg.CallTimeout},
		&singleTier{src: src, workers: cfg.Workers, retry: cfg.Retry, callTimeout: cfg.CallTimeout, log: l},
		&historyTier{src: src, callTimeout: cfg.CallTimeout},
	}
	return newWithTiers(tiers, cfg.Deadline, l, m)
}

func newWithTiers(tiers []Tier, deadline time.Duration, l *applogger.Logger, m repository.Metrics) *Collector {
	if deadline <= 0 {
		deadline = DefaultConfig().Deadline
	}
	return &Collector{tiers: tiers, deadline: deadline, log: l, metrics: m}
}

// FetchPrices returns exactly one outcome per distinct requested ticker. A
// failure for one ticker never aborts the others.
func (c *Collector) FetchPrices(ctx context.Context, tickers []string) map[string]models.CollectionOutcome {
	start := time.Now()
	pending := util.NormalizeTickers(tickers)
	outcomes := make(map[string]models.CollectionOutcome, len(pending))
	attempts := make(map[string]int, len(pending))
	lastErr := make(map[string]string)

	runCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	for _, tier := range c.tiers {
		if len(pending) == 0 || runCtx.Err() != nil {
			break
		}
		res := tier.Resolve(runCtx, pending)

		next := make([]string, 0, len(pending))
		for _, tk := range pending {
			a, reached := res[tk]
			if !reached {
				next = append(next, tk)
				continue
			}
			attempts[tk] += a.attempts
			if a.present() {
				outcomes[tk] = succeeded(tk, *a.quote, attempts[tk])
				continue
			}
			if a.err != nil {
				lastErr[tk] = fmt.Sprintf("%s: %v", tier.Name(), a.err)
			}
			if a.outcome == models.OutcomePermanent && tier.Name() != models.SourceBulk {
				outcomes[tk] = failed(tk, lastErr[tk], tier.Name(), attempts[tk])
				continue
			}
			next = append(next, tk)
		}

		if len(next) > 0 {
			c.log.Debug("tier left tickers unresolved",
				applogger.String("tier", string(tier.Name())),
				applogger.Strings("pending", next),
			)
		}
		pending = next
	}

	for _, tk := range pending {
		reason := lastErr[tk]
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			reason = "collection deadline exceeded"
		case ctx.Err() != nil:
			reason = "collection cancelled: " + ctx.Err().Error()
		case reason == "":
			reason = "no source returned a price"
		}
		outcomes[tk] = failed(tk, reason, models.SourceNone, attempts[tk])
	}

	c.report(outcomes, time.Since(start))
	return outcomes
}

func (c *Collector) report(outcomes map[string]models.CollectionOutcome, took time.Duration) {
	var ok, degraded, bad []string
	for tk, o := range outcomes {
		c.metrics.RecordCollection(string(o.Status), string(o.Source))
		switch o.Status {
		case models.StatusOK:
			ok = append(ok, tk)
			c.metrics.RecordLastPrice(tk, o.Quote.Price)
		case models.StatusDegraded:
			degraded = append(degraded, tk)
			c.metrics.RecordLastPrice(tk, o.Quote.Price)
		default:
			bad = append(bad, tk)
			c.log.Warn("price collection failed",
				applogger.String("ticker", tk),
				applogger.String("reason", o.Error),
				applogger.Int("attempts", o.Attempts),
			)
		}
	}
	c.metrics.RecordLatency("collect_prices", took.Seconds())
	c.log.Info("price collection finished",
		applogger.Int("ok", len(ok)),
		applogger.Int("degraded", len(degraded)),
		applogger.Int("failed", len(bad)),
		applogger.Duration("took_ms", took),
	)
}

func succeeded(ticker string, q models.PriceQuote, attempts int) models.CollectionOutcome {
	q.Ticker = ticker
	q.Price = models.Round2(q.Price)
	status := models.StatusOK
	if q.Stale || q.Source == models.SourceHistory {
		status = models.StatusDegraded
	}
	return models.CollectionOutcome{
		Ticker:   ticker,
		Status:   status,
		Quote:    &q,
		Source:   q.Source,
		Attempts: attempts,
	}
}

func failed(ticker, reason string, source models.QuoteSource, attempts int) models.CollectionOutcome {
	return models.CollectionOutcome{
		Ticker:   ticker,
		Status:   models.StatusFailed,
		Error:    reason,
		Source:   source,
		Attempts: attempts,
	}
}
