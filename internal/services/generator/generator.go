// Package generator turns merged analyst data into a validated price target
// through an AI analyzer, degrading to the previous or static target when
// the analyzer cannot produce one.
package generator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	"StockSentinel/internal/domain/service"
	"StockSentinel/pkg/cache"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/util"
)

// Config tunes regeneration. MaxDeviation rejects buy targets further than
// this fraction from the current price; zero disables the check.
type Config struct {
	MaxAttempts  int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	CallTimeout  time.Duration
	MaxDeviation float64
	LockTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		BackoffMin:   time.Second,
		BackoffMax:   10 * time.Second,
		CallTimeout:  60 * time.Second,
		MaxDeviation: 0.6,
		LockTTL:      10 * time.Minute,
	}
}

// TargetLookup resolves the best currently known target for a ticker.
type TargetLookup interface {
	Current(ctx context.Context, ticker string) (models.Target, string, bool)
}

type Generator struct {
	ai      service.Analyzer
	locks   cache.Service
	targets TargetLookup
	cfg     Config
	now     func() time.Time
	log     *applogger.Logger
	metrics repository.Metrics
}

func New(ai service.Analyzer, locks cache.Service, targets TargetLookup, cfg Config, l *applogger.Logger, m repository.Metrics) *Generator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	return &Generator{ai: ai, locks: locks, targets: targets, cfg: cfg, now: time.Now, log: l, metrics: m}
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate never returns an error; the outcome tag says what happened.
func (g *Generator) Generate(ctx context.Context, ticker string, in Input) models.GenerationResult {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if g.locks != nil {
		key := cache.GenerateKey("regen-lock", ticker)
		acquired, err := g.locks.TryLock(ctx, key, g.cfg.LockTTL)
		switch {
		case err != nil:
			g.log.Warn("regeneration lock unavailable, continuing unlocked",
				applogger.String("ticker", ticker),
				applogger.Error(err),
			)
		case !acquired:
			res := models.GenerationResult{Ticker: ticker, Outcome: models.GenerationSkipped, Reason: "generation already in flight"}
			if t, _, ok := g.targets.Current(ctx, ticker); ok {
				res.Target = &t
			}
			return g.finish(res)
		default:
			defer func() {
				if err := g.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
					g.log.Warn("regeneration unlock failed", applogger.String("ticker", ticker), applogger.Error(err))
				}
			}()
		}
	}

	prompt := BuildPrompt(ticker, in)
	text, attempts, err := g.analyze(ctx, ticker, prompt)
	if err == nil {
		var t models.Target
		if t, err = ParseResponse(ticker, text, g.now()); err == nil {
			if err = g.check(t, in.Price); err == nil {
				enrich(&t, in)
				return g.finish(models.GenerationResult{Ticker: ticker, Target: &t, Outcome: models.GenerationAI, Attempts: attempts})
			}
		}
		g.log.Warn("analysis response rejected",
			applogger.String("ticker", ticker),
			applogger.Error(err),
		)
	}
	return g.finish(g.fallback(ctx, ticker, attempts, err))
}

// analyze retries transient analyzer failures with capped jittered backoff.
func (g *Generator) analyze(ctx context.Context, ticker, prompt string) (string, int, error) {
	var last error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if g.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		}
		start := time.Now()
		res := g.ai.Analyze(callCtx, prompt)
		cancel()
		g.metrics.RecordLatency("ai_analyze", time.Since(start).Seconds())

		switch res.Outcome {
		case models.OutcomeSuccess:
			return res.Text, attempt, nil
		case models.OutcomePermanent:
			return "", attempt, fmt.Errorf("%s: %w", g.ai.Name(), res.Err)
		}
		last = fmt.Errorf("%s: %w", g.ai.Name(), res.Err)
		if attempt == g.cfg.MaxAttempts {
			return "", attempt, last
		}

		wait := util.BackoffWithJitter(g.cfg.BackoffMin, g.cfg.BackoffMax, attempt)
		g.log.Debug("transient analysis failure, backing off",
			applogger.String("ticker", ticker),
			applogger.Int("attempt", attempt),
			applogger.Duration("wait", wait),
			applogger.Error(res.Err),
		)
		if err := util.SleepCtx(ctx, wait); err != nil {
			return "", attempt, fmt.Errorf("analysis cancelled: %w", err)
		}
	}
	return "", g.cfg.MaxAttempts, last
}

func (g *Generator) check(t models.Target, price float64) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if price > 0 && g.cfg.MaxDeviation > 0 && math.Abs(t.BuyPrice-price)/price > g.cfg.MaxDeviation {
		return fmt.Errorf("%w: buy %.2f vs price %.2f", ErrImplausibleBuy, t.BuyPrice, price)
	}
	return nil
}

func (g *Generator) fallback(ctx context.Context, ticker string, attempts int, cause error) models.GenerationResult {
	res := models.GenerationResult{Ticker: ticker, Attempts: attempts, Outcome: models.GenerationFallbackNone}
	if cause != nil {
		res.Reason = cause.Error()
	}
	t, _, ok := g.targets.Current(ctx, ticker)
	if !ok {
		return res
	}
	res.Target = &t
	if t.Source == models.TargetSourceStatic {
		res.Outcome = models.GenerationFallbackStatic
	} else {
		res.Outcome = models.GenerationFallbackPrior
	}
	return res
}

func (g *Generator) finish(res models.GenerationResult) models.GenerationResult {
	g.metrics.RecordGeneration(string(res.Outcome))
	fields := []applogger.Field{
		applogger.String("ticker", res.Ticker),
		applogger.String("outcome", string(res.Outcome)),
		applogger.Int("attempts", res.Attempts),
	}
	if res.Target != nil {
		fields = append(fields,
			applogger.Float64("buy", res.Target.BuyPrice),
			applogger.Float64("sell", res.Target.SellPrice),
			applogger.Int("confidence", res.Target.Confidence),
		)
	}
	if res.Reason != "" {
		fields = append(fields, applogger.String("reason", res.Reason))
	}
	g.log.Info("target generation", fields...)
	return res
}

// enrich copies the analysis context onto a generated target.
func enrich(t *models.Target, in Input) {
	s := in.Summary
	t.AnalystConsensus = s.ConsensusMean
	t.AnalystConfidence = s.Confidence
	t.CurrentPrice = in.Price
	if t.CurrentPrice <= 0 {
		t.CurrentPrice = s.Value(models.MetricCurrentPrice)
	}
	t.Sector = s.Attributes[models.AttrSector]
	t.DataSources = append([]string(nil), s.Sources...)
	t.PERatio = s.Value(models.MetricPE)
	t.MarketCap = s.Value(models.MetricMarketCap)
}
