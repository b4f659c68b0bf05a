package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockSentinel/internal/domain/models"
	drepo "StockSentinel/internal/domain/repository"
	"StockSentinel/internal/services/generator"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

type analystSummarizer interface {
	Summarize(ctx context.Context, ticker string) models.AnalystSummary
}

type targetGenerator interface {
	Generate(ctx context.Context, ticker string, in generator.Input) models.GenerationResult
}

type targetWriter interface {
	SetTargets(ctx context.Context, targets map[string]models.Target) map[string]error
	Portfolio() []string
}

type MonthlyConfig struct {
	Workers       int
	CostPerTicker float64
	HistoryPoints int
}

// MonthlyRegeneration rebuilds targets from fresh analyst data and publishes
// a summary of what changed.
type MonthlyRegeneration struct {
	analyst   analystSummarizer
	generator targetGenerator
	targets   targetWriter
	prices    drepo.PriceSource
	history   drepo.QuoteHistory
	publisher drepo.ReportPublisher
	cfg       MonthlyConfig
	now       func() time.Time
	log       *applogger.Logger
	metrics   drepo.Metrics
}

func NewMonthlyRegeneration(a analystSummarizer, g targetGenerator, t targetWriter, prices drepo.PriceSource,
	history drepo.QuoteHistory, pub drepo.ReportPublisher, cfg MonthlyConfig,
	l *applogger.Logger, m drepo.Metrics) *MonthlyRegeneration {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &MonthlyRegeneration{
		analyst:   a,
		generator: g,
		targets:   t,
		prices:    prices,
		history:   history,
		publisher: pub,
		cfg:       cfg,
		now:       time.Now,
		log:       l,
		metrics:   m,
	}
}

func (r *MonthlyRegeneration) WithClock(now func() time.Time) *MonthlyRegeneration {
	r.now = now
	return r
}

// Run regenerates targets for tickers, or the whole portfolio when empty.
// Per-ticker failures are recorded in the summary and never stop the run.
func (r *MonthlyRegeneration) Run(ctx context.Context, tickers []string) models.RegenerationSummary {
	start := r.now()
	if len(tickers) == 0 {
		tickers = r.targets.Portfolio()
	}
	tickers = util.NormalizeTickers(tickers)

	lines := make([]models.TickerRegeneration, len(tickers))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(r.cfg.Workers, len(tickers)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				lines[i] = r.regenerate(ctx, tickers[i])
			}
		}()
	}
	for i := range tickers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := summarize(lines, r.cfg.CostPerTicker)
	summary.RunID = fmt.Sprintf("monthly-%s", start.UTC().Format("20060102T150405Z"))
	summary.StartedAt = start
	summary.FinishedAt = r.now()

	if err := r.publisher.PublishSummary(ctx, summary); err != nil {
		r.metrics.RecordError("publish")
		r.log.Error("regeneration summary publish failed",
			applogger.String("run_id", summary.RunID),
			applogger.Error(err),
		)
	}
	r.metrics.RecordLatency("monthly_regeneration", summary.FinishedAt.Sub(start).Seconds())
	r.log.Info("target regeneration complete",
		applogger.String("run_id", summary.RunID),
		applogger.Int("updated", summary.Updated),
		applogger.Int("fell_back", summary.FellBack),
		applogger.Int("skipped", summary.Skipped),
		applogger.Int("write_failures", summary.WriteFailures),
	)
	return summary
}

func (r *MonthlyRegeneration) regenerate(ctx context.Context, ticker string) models.TickerRegeneration {
	line := models.TickerRegeneration{Ticker: ticker}
	if ctx.Err() != nil {
		line.Skipped = "run cancelled"
		return line
	}

	summary := r.analyst.Summarize(ctx, ticker)
	line.Quality = summary.Quality
	if summary.Quality == models.QualityFailed {
		line.Skipped = "no analyst data available"
		r.log.Warn("skipping ticker", applogger.String("ticker", ticker), applogger.String("reason", line.Skipped))
		return line
	}

	price := r.currentPrice(ctx, ticker, summary)
	if price <= 0 {
		line.Skipped = "no current price"
		r.log.Warn("skipping ticker", applogger.String("ticker", ticker), applogger.String("reason", line.Skipped))
		return line
	}

	in := generator.Input{Summary: summary, Price: price}
	if r.history != nil && r.cfg.HistoryPoints > 0 {
		pts, err := r.history.Recent(ctx, ticker, r.cfg.HistoryPoints)
		if err != nil {
			r.log.Warn("price history unavailable", applogger.String("ticker", ticker), applogger.Error(err))
		}
		in.History = pts
	}

	res := r.generator.Generate(ctx, ticker, in)
	line.Outcome = res.Outcome
	line.Target = res.Target
	if res.Outcome == models.GenerationSkipped {
		line.Skipped = res.Reason
		return line
	}
	if res.Outcome.Fresh() && res.Target != nil {
		if err := r.targets.SetTargets(ctx, map[string]models.Target{ticker: *res.Target})[ticker]; err != nil {
			line.WriteError = err.Error()
			r.metrics.RecordError("target_write")
		}
	}
	return line
}

func (r *MonthlyRegeneration) currentPrice(ctx context.Context, ticker string, s models.AnalystSummary) float64 {
	if p := s.Value(models.MetricCurrentPrice); p > 0 {
		return p
	}
	if r.prices == nil {
		return 0
	}
	res := r.prices.Quote(ctx, ticker)
	if res.Outcome != models.OutcomeSuccess || res.Quote == nil || !res.Quote.Valid() {
		return 0
	}
	return res.Quote.Price
}

func summarize(lines []models.TickerRegeneration, costPerTicker float64) models.RegenerationSummary {
	s := models.RegenerationSummary{Tickers: lines}
	confSum := 0
	for _, l := range lines {
		switch {
		case l.Skipped != "":
			s.Skipped++
		case l.WriteError != "":
			s.WriteFailures++
		case l.Outcome.Fresh():
			s.Updated++
			confSum += l.Target.Confidence
		default:
			s.FellBack++
		}
	}
	if s.Updated > 0 {
		s.AverageConfidence = models.Round2(float64(confSum) / float64(s.Updated))
	}
	s.EstimatedCost = models.Round2(float64(s.Updated) * costPerTicker)
	return s
}
