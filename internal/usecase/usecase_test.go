package usecase

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
	drepo "StockSentinel/internal/domain/repository"
	"StockSentinel/internal/services/classifier"
	"StockSentinel/internal/services/collector"
	"StockSentinel/internal/services/gate"
	"StockSentinel/internal/services/generator"
	"StockSentinel/internal/services/targets"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/metrics"
)

var clock = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type staticSource struct {
	prices map[string]float64
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) BulkQuotes(_ context.Context, tickers []string) models.BulkResult {
	out := map[string]models.PriceQuote{}
	for _, tk := range tickers {
		if p, ok := s.prices[tk]; ok {
			out[tk] = models.PriceQuote{Ticker: tk, Price: p, AsOf: clock, Source: models.SourceBulk}
		}
	}
	return models.BulkResult{Quotes: out, Outcome: models.OutcomeSuccess}
}

func (s staticSource) Quote(_ context.Context, ticker string) models.QuoteResult {
	if p, ok := s.prices[ticker]; ok {
		return models.QuoteResult{Quote: &models.PriceQuote{Ticker: ticker, Price: p, AsOf: clock}, Outcome: models.OutcomeSuccess}
	}
	return models.QuoteResult{Outcome: models.OutcomePermanent, Err: errors.New("unknown symbol")}
}

func (s staticSource) LastClose(ctx context.Context, ticker string) models.QuoteResult {
	return s.Quote(ctx, ticker)
}

type recordingPublisher struct {
	mu        sync.Mutex
	cycles    []models.CycleReport
	summaries []models.RegenerationSummary
	err       error
}

func (p *recordingPublisher) PublishCycle(_ context.Context, r models.CycleReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles = append(p.cycles, r)
	return p.err
}

func (p *recordingPublisher) PublishSummary(_ context.Context, s models.RegenerationSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingHistory struct {
	recorded []models.PriceQuote
	points   []models.PricePoint
}

func (h *recordingHistory) Record(_ context.Context, q []models.PriceQuote) error {
	h.recorded = append(h.recorded, q...)
	return nil
}

func (h *recordingHistory) Recent(context.Context, string, int) ([]models.PricePoint, error) {
	return h.points, nil
}

type fixedGate struct {
	open   bool
	reason string
}

func (g fixedGate) ShouldRun(time.Time) (bool, string) { return g.open, g.reason }

func sameTargets() map[string]targets.Holding {
	return map[string]targets.Holding{
		"AAA": {Buy: 45, Sell: 62},
		"BBB": {Buy: 45, Sell: 62},
		"CCC": {Buy: 45, Sell: 62},
	}
}

func newMonitor(g marketGate, prices map[string]float64, portfolio map[string]targets.Holding, tickers []string,
	pub *recordingPublisher, hist *recordingHistory) *DailyMonitor {
	cfg := collector.Config{
		Workers:     2,
		Deadline:    2 * time.Second,
		CallTimeout: time.Second,
		Retry:       collector.RetryPolicy{MaxAttempts: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond},
	}
	l, m := applogger.Nop(), metrics.Nop{}
	c := collector.New(staticSource{prices: prices}, cfg, l, m)
	store := targets.New(nil, targets.Config{CacheTTL: time.Minute, Defaults: portfolio}, l, m)
	var h drepo.QuoteHistory
	if hist != nil {
		h = hist
	}
	mon := NewDailyMonitor(g, c, store, classifier.New(classifier.Config{WatchBand: 0.05}), pub, h, tickers, l, m)
	return mon.WithClock(func() time.Time { return clock })
}

func kinds(signals []models.Signal) []models.SignalKind {
	out := make([]models.SignalKind, len(signals))
	for i, s := range signals {
		out[i] = s.Kind
	}
	return out
}

func TestBypassedCycleEndToEnd(t *testing.T) {
	closed := gate.New(gate.Config{Override: gate.OverrideClosed})
	pub := &recordingPublisher{}
	prices := map[string]float64{"AAA": 44, "BBB": 50, "CCC": 65}
	mon := newMonitor(closed, prices, sameTargets(), []string{"AAA", "BBB", "CCC"}, pub, nil)

	report := mon.Run(context.Background(), true)
	require.True(t, report.Ran)
	assert.Equal(t, "Bypass: forced open", report.GateReason)
	assert.Equal(t, []models.SignalKind{models.SignalBuy, models.SignalNone, models.SignalSell}, kinds(report.Signals))
	assert.Empty(t, report.Failed)
	assert.True(t, report.Published)
	require.Len(t, pub.cycles, 1)
	assert.Len(t, pub.cycles[0].Alerts(), 2)
	assert.Len(t, report.Portfolio, 3)
	assert.Equal(t, targets.TierStatic, report.Portfolio[0].Tier)

	watch := newMonitor(closed, map[string]float64{"AAA": 46}, sameTargets(), []string{"AAA"}, pub, nil).Run(context.Background(), true)
	assert.Equal(t, []models.SignalKind{models.SignalWatch}, kinds(watch.Signals))
}

func TestClosedMarketSkipsCycle(t *testing.T) {
	pub := &recordingPublisher{}
	mon := newMonitor(fixedGate{open: false, reason: "Weekend (Saturday)"}, map[string]float64{"AAA": 44}, sameTargets(), nil, pub, nil)

	report := mon.Run(context.Background(), false)
	assert.False(t, report.Ran)
	assert.Equal(t, "Weekend (Saturday)", report.GateReason)
	assert.Empty(t, report.Signals)
	assert.Empty(t, pub.cycles)
}

func TestPartialFailuresAreReported(t *testing.T) {
	pub := &recordingPublisher{}
	hist := &recordingHistory{}
	prices := map[string]float64{"AAA": 44, "CCC": 65, "ZZZ": 10}
	mon := newMonitor(fixedGate{open: true, reason: "Market open: 10:00 ET"}, prices, sameTargets(),
		[]string{"AAA", "BBB", "CCC", "ZZZ"}, pub, hist)

	report := mon.Run(context.Background(), false)
	assert.Equal(t, []models.SignalKind{models.SignalBuy, models.SignalSell}, kinds(report.Signals))
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "BBB", report.Failed[0].Ticker)
	assert.Equal(t, "collect", report.Failed[0].Stage)
	assert.Equal(t, "ZZZ", report.Failed[1].Ticker)
	assert.Equal(t, "targets", report.Failed[1].Stage)
	assert.NotEmpty(t, report.Failed[1].Reason)
	assert.Len(t, report.Portfolio, 4)
	assert.Len(t, hist.recorded, 3)
}

func TestCycleIsIdempotent(t *testing.T) {
	pub := &recordingPublisher{}
	prices := map[string]float64{"AAA": 44, "BBB": 50, "CCC": 65}
	mon := newMonitor(fixedGate{open: true}, prices, sameTargets(), nil, pub, nil)

	first := mon.Run(context.Background(), false)
	second := mon.Run(context.Background(), false)
	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, mon.Tickers())
}

func TestPublishFailureIsRecordedOnReport(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	mon := newMonitor(fixedGate{open: true}, map[string]float64{"AAA": 44}, sameTargets(), []string{"AAA"}, pub, nil)

	report := mon.Run(context.Background(), false)
	assert.False(t, report.Published)
	assert.Equal(t, "broker down", report.PublishErr)
	assert.Len(t, report.Signals, 1)
}

type fakeSummarizer map[string]models.AnalystSummary

func (f fakeSummarizer) Summarize(_ context.Context, ticker string) models.AnalystSummary {
	if s, ok := f[ticker]; ok {
		return s
	}
	return models.AnalystSummary{Ticker: ticker, Quality: models.QualityFailed}
}

type fakeGenerator struct {
	results  map[string]models.GenerationResult
	inputs   sync.Map
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeGenerator) Generate(_ context.Context, ticker string, in generator.Input) models.GenerationResult {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	f.inputs.Store(ticker, in)
	return f.results[ticker]
}

type fakeWriter struct {
	mu      sync.Mutex
	written map[string]models.Target
	fail    map[string]bool
}

func (w *fakeWriter) SetTargets(_ context.Context, ts map[string]models.Target) map[string]error {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := map[string]error{}
	for tk, t := range ts {
		if w.fail[tk] {
			errs[tk] = errors.New("write target: redis down")
			continue
		}
		w.written[tk] = t
	}
	return errs
}

func (w *fakeWriter) Portfolio() []string { return []string{"AAA", "BBB", "CCC", "DDD", "EEE"} }

func priced(price float64) models.AnalystSummary {
	return models.AnalystSummary{
		Quality: models.QualityHigh,
		Metrics: map[string]models.Provenanced{models.MetricCurrentPrice: {Value: price, Source: "yahoo_api"}},
	}
}

func aiResult(ticker string, conf int) models.GenerationResult {
	t := models.Target{Ticker: ticker, BuyPrice: 40, SellPrice: 60, Confidence: conf, Source: models.TargetSourceAI}
	return models.GenerationResult{Ticker: ticker, Target: &t, Outcome: models.GenerationAI, Attempts: 1}
}

func TestMonthlyRegenerationSummary(t *testing.T) {
	prior := models.Target{Ticker: "DDD", BuyPrice: 10, SellPrice: 20, Confidence: 5, Source: models.TargetSourceAI}
	gen := &fakeGenerator{results: map[string]models.GenerationResult{
		"AAA": aiResult("AAA", 8),
		"DDD": {Ticker: "DDD", Target: &prior, Outcome: models.GenerationFallbackPrior, Attempts: 3},
		"EEE": aiResult("EEE", 6),
	}}
	analyst := fakeSummarizer{
		"AAA": priced(50),
		"CCC": {Quality: models.QualityMedium},
		"DDD": priced(15),
		"EEE": priced(50),
	}
	writer := &fakeWriter{written: map[string]models.Target{}, fail: map[string]bool{"EEE": true}}
	pub := &recordingPublisher{}
	hist := &recordingHistory{points: []models.PricePoint{{Ticker: "AAA", Close: 49}}}

	job := NewMonthlyRegeneration(analyst, gen, writer, staticSource{}, hist, pub,
		MonthlyConfig{Workers: 2, CostPerTicker: 0.5, HistoryPoints: 30}, applogger.Nop(), metrics.Nop{}).
		WithClock(func() time.Time { return clock })

	s := job.Run(context.Background(), nil)
	require.Len(t, s.Tickers, 5)
	assert.Equal(t, []string{"AAA", "BBB", "CCC", "DDD", "EEE"}, []string{
		s.Tickers[0].Ticker, s.Tickers[1].Ticker, s.Tickers[2].Ticker, s.Tickers[3].Ticker, s.Tickers[4].Ticker,
	})
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 1, s.FellBack)
	assert.Equal(t, 1, s.WriteFailures)
	assert.Equal(t, 8.0, s.AverageConfidence)
	assert.Equal(t, 0.5, s.EstimatedCost)

	assert.Equal(t, "no analyst data available", s.Tickers[1].Skipped)
	assert.Equal(t, "no current price", s.Tickers[2].Skipped)
	assert.Contains(t, s.Tickers[4].WriteError, "redis down")
	assert.Contains(t, writer.written, "AAA")
	assert.NotContains(t, writer.written, "DDD")

	in, ok := gen.inputs.Load("AAA")
	require.True(t, ok)
	assert.Equal(t, 50.0, in.(generator.Input).Price)
	assert.Len(t, in.(generator.Input).History, 1)

	require.Len(t, pub.summaries, 1)
	assert.Equal(t, s.RunID, pub.summaries[0].RunID)
	assert.LessOrEqual(t, gen.peak.Load(), int32(2))
}

func TestMonthlyRegenerationSubset(t *testing.T) {
	gen := &fakeGenerator{results: map[string]models.GenerationResult{
		"AAA": {Ticker: "AAA", Outcome: models.GenerationSkipped, Reason: "generation already in flight"},
	}}
	writer := &fakeWriter{written: map[string]models.Target{}}
	job := NewMonthlyRegeneration(fakeSummarizer{"AAA": priced(50)}, gen, writer, nil, nil, &recordingPublisher{},
		MonthlyConfig{Workers: 4}, applogger.Nop(), metrics.Nop{})

	s := job.Run(context.Background(), []string{"aaa", "AAA"})
	require.Len(t, s.Tickers, 1)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, models.GenerationSkipped, s.Tickers[0].Outcome)
	assert.Empty(t, writer.written)
}
