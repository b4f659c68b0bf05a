package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/domain/models"
	"StockSentinel/pkg/cache"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/metrics"
)

var now = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

const goodReply = `Here is my analysis.

**BUY TARGET:** $480.50
SELL TARGET: $1,012.75
Confidence: 8/10
KEY CATALYST: Medicare Advantage repricing
key catalyst: Optum margin recovery
RISK FACTOR: Regulatory scrutiny
`

type fakeAnalyzer struct {
	mu      sync.Mutex
	results []models.AnalysisResult
	calls   int
	prompt  string
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Analyze(_ context.Context, prompt string) models.AnalysisResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = prompt
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func reply(text string) models.AnalysisResult {
	return models.AnalysisResult{Text: text, Outcome: models.OutcomeSuccess}
}

func transient() models.AnalysisResult {
	return models.AnalysisResult{Outcome: models.OutcomeTransient, Err: errors.New("429 rate limited")}
}

func permanent() models.AnalysisResult {
	return models.AnalysisResult{Outcome: models.OutcomePermanent, Err: errors.New("401 invalid key")}
}

type fakeLookup map[string]models.Target

func (f fakeLookup) Current(_ context.Context, ticker string) (models.Target, string, bool) {
	t, ok := f[ticker]
	return t, "store", ok
}

type recordingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) RecordGeneration(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func testConfig() Config {
	return Config{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond, MaxDeviation: 0.6, LockTTL: time.Minute}
}

func newGenerator(ai *fakeAnalyzer, locks cache.Service, lookup fakeLookup, m *recordingMetrics) *Generator {
	return New(ai, locks, lookup, testConfig(), applogger.Nop(), m).WithClock(func() time.Time { return now })
}

func input(price float64) Input {
	return Input{
		Price: price,
		Summary: models.AnalystSummary{
			Ticker:        "UNH",
			ConsensusMean: 610,
			Confidence:    8,
			Sources:       []string{"yahoo_api"},
			Attributes:    map[string]string{models.AttrSector: "Healthcare"},
			Metrics: map[string]models.Provenanced{
				models.MetricPE:        {Value: 21.4, Source: "yahoo_api"},
				models.MetricMarketCap: {Value: 4.6e11, Source: "yahoo_api"},
			},
		},
	}
}

func TestGenerateParsesAndEnrichesTarget(t *testing.T) {
	ai := &fakeAnalyzer{results: []models.AnalysisResult{reply(goodReply)}}
	m := &recordingMetrics{}
	res := newGenerator(ai, nil, fakeLookup{}, m).Generate(context.Background(), "unh", input(520))

	require.Equal(t, models.GenerationAI, res.Outcome)
	require.NotNil(t, res.Target)
	tg := res.Target
	assert.Equal(t, "UNH", tg.Ticker)
	assert.Equal(t, 480.5, tg.BuyPrice)
	assert.Equal(t, 1012.75, tg.SellPrice)
	assert.Equal(t, 8, tg.Confidence)
	assert.Equal(t, []string{"Medicare Advantage repricing", "Optum margin recovery"}, tg.Catalysts)
	assert.Equal(t, []string{"Regulatory scrutiny"}, tg.Risks)
	assert.Equal(t, models.TargetSourceAI, tg.Source)
	assert.Equal(t, now, tg.GeneratedAt)
	assert.Equal(t, 610.0, tg.AnalystConsensus)
	assert.Equal(t, 520.0, tg.CurrentPrice)
	assert.Equal(t, "Healthcare", tg.Sector)
	assert.Equal(t, 21.4, tg.PERatio)
	assert.Equal(t, []string{"ai"}, m.outcomes)
	assert.Contains(t, ai.prompt, "Analyze UNH")
}

func TestTransientFailuresAreRetried(t *testing.T) {
	ai := &fakeAnalyzer{results: []models.AnalysisResult{transient(), transient(), reply(goodReply)}}
	res := newGenerator(ai, nil, fakeLookup{}, &recordingMetrics{}).Generate(context.Background(), "UNH", input(520))
	assert.Equal(t, models.GenerationAI, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
}

func TestExhaustedRetriesFallBackToPrior(t *testing.T) {
	prior := models.Target{Ticker: "UNH", BuyPrice: 450, SellPrice: 600, Confidence: 7, Source: models.TargetSourceAI}
	ai := &fakeAnalyzer{results: []models.AnalysisResult{transient()}}
	res := newGenerator(ai, nil, fakeLookup{"UNH": prior}, &recordingMetrics{}).Generate(context.Background(), "UNH", input(520))

	assert.Equal(t, models.GenerationFallbackPrior, res.Outcome)
	assert.Equal(t, 3, ai.calls)
	require.NotNil(t, res.Target)
	assert.Equal(t, 450.0, res.Target.BuyPrice)
	assert.Contains(t, res.Reason, "rate limited")
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	static := models.Target{Ticker: "UNH", BuyPrice: 300, SellPrice: 388, Confidence: 3, Source: models.TargetSourceStatic}
	ai := &fakeAnalyzer{results: []models.AnalysisResult{permanent()}}
	res := newGenerator(ai, nil, fakeLookup{"UNH": static}, &recordingMetrics{}).Generate(context.Background(), "UNH", input(520))

	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, models.GenerationFallbackStatic, res.Outcome)
}

func TestInvalidResponsesAreRejected(t *testing.T) {
	cases := map[string]struct {
		text  string
		price float64
	}{
		"inverted":      {"BUY TARGET: $600\nSELL TARGET: $500\nCONFIDENCE: 7/10", 550},
		"confidence":    {"BUY TARGET: $400\nSELL TARGET: $500\nCONFIDENCE: 11/10", 450},
		"zero":          {"BUY TARGET: $0\nSELL TARGET: $500\nCONFIDENCE: 5/10", 450},
		"missing sell":  {"BUY TARGET: $400\nCONFIDENCE: 5/10", 450},
		"implausible":   {"BUY TARGET: $30\nSELL TARGET: $150\nCONFIDENCE: 5/10", 100},
		"no confidence": {"BUY TARGET: $400\nSELL TARGET: $500", 450},
		"unstructured":  {"I cannot help with that.", 450},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := &recordingMetrics{}
			ai := &fakeAnalyzer{results: []models.AnalysisResult{reply(tc.text)}}
			res := newGenerator(ai, nil, fakeLookup{}, m).Generate(context.Background(), "XYZ", Input{Price: tc.price})
			assert.Equal(t, models.GenerationFallbackNone, res.Outcome)
			assert.Nil(t, res.Target)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, 1, ai.calls)
			assert.Equal(t, []string{"fallback_none"}, m.outcomes)
		})
	}
}

func TestInFlightGenerationIsSkipped(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	ok, err := mc.TryLock(context.Background(), cache.GenerateKey("regen-lock", "UNH"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	prior := models.Target{Ticker: "UNH", BuyPrice: 450, SellPrice: 600, Confidence: 7, Source: models.TargetSourceAI}
	ai := &fakeAnalyzer{results: []models.AnalysisResult{reply(goodReply)}}
	m := &recordingMetrics{}
	res := newGenerator(ai, mc, fakeLookup{"UNH": prior}, m).Generate(context.Background(), "UNH", input(520))

	assert.Equal(t, models.GenerationSkipped, res.Outcome)
	assert.Equal(t, 0, ai.calls)
	require.NotNil(t, res.Target)
	assert.Equal(t, []string{"skipped_inflight"}, m.outcomes)
}

func TestLockIsReleasedAfterGeneration(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	ai := &fakeAnalyzer{results: []models.AnalysisResult{reply(goodReply)}}
	g := newGenerator(ai, mc, fakeLookup{}, &recordingMetrics{})

	assert.Equal(t, models.GenerationAI, g.Generate(context.Background(), "UNH", input(520)).Outcome)
	assert.Equal(t, models.GenerationAI, g.Generate(context.Background(), "UNH", input(520)).Outcome)
	assert.Equal(t, 2, ai.calls)
}

func TestParseResponseTolerantFormatting(t *testing.T) {
	tg, err := ParseResponse("ASML", "buy target: 1,050\nsell target: $1,420.126\nconfidence: 6\nrisk factor: Export controls\nRISK FACTOR: Cyclical demand", now)
	require.NoError(t, err)
	assert.Equal(t, 1050.0, tg.BuyPrice)
	assert.Equal(t, 1420.13, tg.SellPrice)
	assert.Equal(t, 6, tg.Confidence)
	assert.Empty(t, tg.Catalysts)
	assert.Equal(t, []string{"Export controls", "Cyclical demand"}, tg.Risks)

	_, err = ParseResponse("ASML", "SELL TARGET: $10", now)
	assert.ErrorIs(t, err, ErrNoBuyTarget)
}

func TestBuildPromptSections(t *testing.T) {
	in := input(520)
	in.History = []models.PricePoint{
		{Ticker: "UNH", Close: 511.2, At: now.AddDate(0, 0, -2)},
		{Ticker: "UNH", Close: 518.9, At: now.AddDate(0, 0, -1)},
	}
	p := BuildPrompt("UNH", in)
	for _, section := range []string{"CURRENT MARKET DATA", "VALUATION METRICS", "FINANCIAL HEALTH", "GROWTH & PROFITABILITY", "ANALYST CONSENSUS", "RECENT CLOSES"} {
		assert.Contains(t, p, section)
	}
	assert.Contains(t, p, "- Current Price: $520.00")
	assert.Contains(t, p, "- Market Cap: $460.00B")
	assert.Contains(t, p, "- P/E Ratio: 21.40")
	assert.Contains(t, p, "- Forward P/E: N/A")
	assert.Contains(t, p, "- Data Sources: yahoo_api")
	assert.Contains(t, p, "2026-03-31: 518.90")
	assert.Contains(t, p, "- Period Change: +1.51%")
	assert.Contains(t, p, "- Period Range: $511.20 - $518.90")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(p), "RISK FACTOR: [One sentence explanation]"))
}
