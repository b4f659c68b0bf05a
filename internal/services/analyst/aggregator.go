// Package analyst collects analyst and fundamentals data from several
// sources and merges it into one scored summary per ticker.
package analyst

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	"StockSentinel/pkg/cache"
	applogger "StockSentinel/pkg/logger"
)

// ExpensiveCost is the source cost from which a source only runs when the
// cheaper ones left the data insufficient.
const ExpensiveCost = 10

type Config struct {
	CacheTTL      time.Duration
	StaleAfter    time.Duration
	SourceTimeout time.Duration
	ExpensiveCost int
}

type Aggregator struct {
	sources []repository.AnalystSource
	costs   map[string]int
	cache   cache.Service
	cfg     Config
	now     func() time.Time
	log     *applogger.Logger
	metrics repository.Metrics
}

// New orders sources cheapest first. A nil cache disables result caching.
func New(sources []repository.AnalystSource, c cache.Service, cfg Config, l *applogger.Logger, m repository.Metrics) *Aggregator {
	if cfg.ExpensiveCost <= 0 {
		cfg.ExpensiveCost = ExpensiveCost
	}
	sorted := make([]repository.AnalystSource, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Cost() < sorted[j].Cost() })

	costs := make(map[string]int, len(sorted))
	for _, s := range sorted {
		costs[s.Name()] = s.Cost()
	}
	return &Aggregator{
		sources: sorted,
		costs:   costs,
		cache:   c,
		cfg:     cfg,
		now:     time.Now,
		log:     l,
		metrics: m,
	}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Sources lists the configured source names in call order.
func (a *Aggregator) Sources() []string {
	out := make([]string, len(a.sources))
	for i, s := range a.sources {
		out[i] = s.Name()
	}
	return out
}

// Summarize collects and merges data for ticker.
func (a *Aggregator) Summarize(ctx context.Context, ticker string) models.AnalystSummary {
	return Merge(ticker, a.Collect(ctx, ticker))
}

// Collect walks the sources cheapest first and returns what each one that
// ran reported, in call order. Expensive sources are skipped once the data
// is sufficient. A failing source is logged and skipped.
func (a *Aggregator) Collect(ctx context.Context, ticker string) []models.AnalystDatum {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var data []models.AnalystDatum
	for _, src := range a.sources {
		if ctx.Err() != nil {
			break
		}
		if src.Cost() >= a.cfg.ExpensiveCost && !a.Insufficient(data) {
			a.log.Debug("skipping expensive analyst source",
				applogger.String("ticker", ticker),
				applogger.String("source", src.Name()),
			)
			continue
		}
		d, err := a.fetch(ctx, src, ticker)
		if err != nil {
			a.metrics.RecordError("analyst_source")
			a.log.Warn("analyst source failed",
				applogger.String("ticker", ticker),
				applogger.String("source", src.Name()),
				applogger.Error(err),
			)
			continue
		}
		data = append(data, d)
	}
	return data
}

func (a *Aggregator) fetch(ctx context.Context, src repository.AnalystSource, ticker string) (models.AnalystDatum, error) {
	key := cache.GenerateKeyWithParams("analyst", ticker, src.Name())
	if a.cache != nil {
		var d models.AnalystDatum
		if err := a.cache.Get(ctx, key, &d); err == nil {
			return d, nil
		}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.cfg.SourceTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.SourceTimeout)
	}
	defer cancel()

	start := time.Now()
	d, err := safeFetch(callCtx, src, ticker)
	a.metrics.RecordLatency("analyst_"+src.Name(), time.Since(start).Seconds())
	if err != nil {
		return models.AnalystDatum{}, err
	}
	if d.Source == "" {
		d.Source = src.Name()
	}
	if d.FetchedAt.IsZero() {
		d.FetchedAt = a.now()
	}

	if a.cache != nil && a.cfg.CacheTTL > 0 {
		if err := a.cache.Set(ctx, key, d, a.cfg.CacheTTL); err != nil {
			a.log.Debug("analyst cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return d, nil
}

// safeFetch turns a panicking source into an error.
func safeFetch(ctx context.Context, src repository.AnalystSource, ticker string) (d models.AnalystDatum, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Fetch(ctx, ticker)
}

// Insufficient reports whether more sources should be consulted: nothing
// carries a rating distribution, or fewer than three target prices are known
// and no structured source has a mean target backed by five or more
// analysts, or the newest datum is older than the staleness limit.
func (a *Aggregator) Insufficient(data []models.AnalystDatum) bool {
	if len(data) == 0 {
		return true
	}

	hasRatings := false
	newest := time.Time{}
	for _, d := range data {
		if d.Ratings != nil && d.Ratings.Total() > 0 {
			hasRatings = true
		}
		if d.FetchedAt.After(newest) {
			newest = d.FetchedAt
		}
	}
	if !hasRatings {
		return true
	}
	if a.cfg.StaleAfter > 0 && a.now().Sub(newest) > a.cfg.StaleAfter {
		return true
	}
	if len(targetPrices(data)) >= 3 {
		return false
	}
	for _, d := range data {
		if a.costs[d.Source] >= a.cfg.ExpensiveCost {
			continue
		}
		mean, ok := d.Metric(models.MetricTargetMean)
		count, _ := d.Metric(models.MetricAnalystCount)
		if ok && mean > 0 && count >= 5 {
			return false
		}
	}
	return true
}
