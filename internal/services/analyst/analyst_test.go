package analyst

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	"StockSentinel/pkg/cache"
	applogger "StockSentinel/pkg/logger"
	"StockSentinel/pkg/metrics"
)

var now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type fakeSource struct {
	name   string
	cost   int
	datum  models.AnalystDatum
	err    error
	panics bool
	calls  int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Cost() int { return f.cost }

func (f *fakeSource) Fetch(_ context.Context, ticker string) (models.AnalystDatum, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return models.AnalystDatum{}, f.err
	}
	d := f.datum
	d.Ticker = ticker
	d.Source = f.name
	return d, nil
}

func structured(ratings bool, metrics map[string]float64) *fakeSource {
	d := models.AnalystDatum{Metrics: metrics, FetchedAt: now}
	if ratings {
		d.Ratings = &models.Ratings{Buy: 12, Hold: 5, Sell: 1}
	}
	return &fakeSource{name: "yahoo_api", cost: 1, datum: d}
}

func scraper(name string, metrics map[string]float64) *fakeSource {
	return &fakeSource{name: name, cost: 10, datum: models.AnalystDatum{Metrics: metrics, FetchedAt: now}}
}

func newAggregator(c cache.Service, srcs ...repository.AnalystSource) *Aggregator {
	cfg := Config{CacheTTL: time.Hour, StaleAfter: 24 * time.Hour}
	return New(srcs, c, cfg, applogger.Nop(), metrics.Nop{}).WithClock(func() time.Time { return now })
}

func TestSufficientStructuredDataSkipsScrapers(t *testing.T) {
	api := structured(true, map[string]float64{models.MetricTargetMean: 120, models.MetricAnalystCount: 20})
	mw := scraper("marketwatch", map[string]float64{models.MetricTargetMean: 118})

	data := newAggregator(nil, mw, api).Collect(context.Background(), "unh")
	require.Len(t, data, 1)
	assert.Equal(t, "UNH", data[0].Ticker)
	assert.Equal(t, 0, mw.calls)
}

func TestMissingRatingsRunsScrapersInCostOrder(t *testing.T) {
	api := structured(false, map[string]float64{models.MetricTargetMean: 120, models.MetricAnalystCount: 20})
	mw := scraper("marketwatch", map[string]float64{models.MetricTargetMean: 118})
	web := &fakeSource{name: "yahoo_web", cost: 12, datum: models.AnalystDatum{Metrics: map[string]float64{models.MetricTargetHigh: 150}}}

	data := newAggregator(nil, web, mw, api).Collect(context.Background(), "UNH")
	require.Len(t, data, 3)
	assert.Equal(t, []string{"yahoo_api", "marketwatch", "yahoo_web"}, []string{data[0].Source, data[1].Source, data[2].Source})
	assert.Equal(t, now, data[2].FetchedAt)
}

func TestFailingAndPanickingSourcesAreIsolated(t *testing.T) {
	bad := &fakeSource{name: "bad", cost: 0, err: errors.New("403")}
	boom := &fakeSource{name: "boom", cost: 1, panics: true}
	mw := scraper("marketwatch", map[string]float64{models.MetricTargetMean: 118})

	var data []models.AnalystDatum
	require.NotPanics(t, func() {
		data = newAggregator(nil, bad, boom, mw).Collect(context.Background(), "UNH")
	})
	require.Len(t, data, 1)
	assert.Equal(t, "marketwatch", data[0].Source)
	assert.Equal(t, 1, boom.calls)
}

func TestResultsAreCachedPerTickerAndSource(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	api := structured(true, map[string]float64{models.MetricTargetMean: 120, models.MetricAnalystCount: 20})
	agg := newAggregator(mc, api)

	first := agg.Collect(context.Background(), "UNH")
	second := agg.Collect(context.Background(), "UNH")
	assert.Equal(t, 1, api.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Metrics, second[0].Metrics)

	agg.Collect(context.Background(), "XOM")
	assert.Equal(t, 2, api.calls)
}

func TestInsufficient(t *testing.T) {
	agg := newAggregator(nil, structured(true, nil), scraper("marketwatch", nil))
	ratings := &models.Ratings{Buy: 3}

	datum := func(source string, r *models.Ratings, at time.Time, m map[string]float64) []models.AnalystDatum {
		return []models.AnalystDatum{{Source: source, Ratings: r, FetchedAt: at, Metrics: m}}
	}
	bands := map[string]float64{models.MetricTargetMean: 100, models.MetricTargetHigh: 120, models.MetricTargetLow: 90}

	cases := []struct {
		name string
		data []models.AnalystDatum
		want bool
	}{
		{"empty", nil, true},
		{"no ratings", datum("yahoo_api", nil, now, bands), true},
		{"three targets", datum("marketwatch", ratings, now, bands), false},
		{"structured mean with coverage", datum("yahoo_api", ratings, now, map[string]float64{models.MetricTargetMean: 100, models.MetricAnalystCount: 5}), false},
		{"scraped mean does not count", datum("marketwatch", ratings, now, map[string]float64{models.MetricTargetMean: 100, models.MetricAnalystCount: 30}), true},
		{"thin coverage", datum("yahoo_api", ratings, now, map[string]float64{models.MetricTargetMean: 100, models.MetricAnalystCount: 4}), true},
		{"stale", datum("yahoo_api", ratings, now.Add(-48*time.Hour), map[string]float64{models.MetricTargetMean: 100, models.MetricAnalystCount: 20}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, agg.Insufficient(tc.data))
		})
	}
}

func TestMergeKeepsProvenanceAndConflicts(t *testing.T) {
	data := []models.AnalystDatum{
		{
			Source:     "yahoo_api",
			Metrics:    map[string]float64{models.MetricTargetMean: 120, models.MetricAnalystCount: 8, models.MetricRecommendation: 2.0},
			Attributes: map[string]string{models.AttrSector: "Healthcare"},
		},
		{
			Source:  "marketwatch",
			Ratings: &models.Ratings{Buy: 10, Hold: 4, Sell: 1},
			Metrics: map[string]float64{models.MetricTargetMean: 125, models.MetricAnalystCount: 12, models.MetricRecommendation: 2.5},
		},
		{
			Source:  "yahoo_web",
			Ratings: &models.Ratings{Buy: 1},
			Metrics: map[string]float64{models.MetricTargetHigh: 140},
		},
	}

	s := Merge("UNH", data)
	assert.Equal(t, models.Provenanced{Value: 120, Source: "yahoo_api"}, s.Metrics[models.MetricTargetMean])
	assert.Equal(t, "marketwatch", s.RatingsSource)
	assert.Equal(t, 10, s.Ratings.Buy)
	assert.Equal(t, 12, s.AnalystCount)
	assert.Equal(t, 2.25, s.Recommendation)
	assert.Equal(t, "Healthcare", s.Attributes[models.AttrSector])
	assert.Equal(t, []string{"yahoo_api", "marketwatch", "yahoo_web"}, s.Sources)

	require.Len(t, s.Conflicts, 3)
	fields := map[string]string{}
	for _, c := range s.Conflicts {
		fields[c.Field] = c.Winner
		assert.Equal(t, "marketwatch", c.Source)
	}
	assert.Equal(t, "yahoo_api", fields[models.MetricTargetMean])

	assert.Equal(t, []float64{120, 125, 140}, s.TargetPrices)
	assert.Equal(t, 128.33, s.ConsensusMean)
	assert.Equal(t, 140.0, s.ConsensusHigh)
	assert.Equal(t, 120.0, s.ConsensusLow)
	// 6 for sources, 3 for targets, CV < 0.1, 12 analysts.
	assert.Equal(t, 10, s.Confidence)
	assert.Equal(t, models.QualityHigh, s.Quality)
}

func TestMergeDropsOutliers(t *testing.T) {
	flat := map[string]float64{models.MetricTargetMean: 100, models.MetricTargetHigh: 100, models.MetricTargetLow: 100}
	data := []models.AnalystDatum{
		{Source: "a", Metrics: flat},
		{Source: "b", Metrics: flat},
		{Source: "c", Metrics: flat},
		{Source: "d", Metrics: map[string]float64{models.MetricTargetMean: 100, models.MetricTargetHigh: 1000}},
	}
	s := Merge("XOM", data)
	assert.Len(t, s.TargetPrices, 10)
	assert.Equal(t, 100.0, s.ConsensusHigh)
	assert.Equal(t, 100.0, s.ConsensusMean)
}

func TestMergeWithoutSourcesFails(t *testing.T) {
	s := Merge("XOM", nil)
	assert.Equal(t, models.QualityFailed, s.Quality)
	assert.Zero(t, s.Confidence)
	assert.Empty(t, s.Sources)
}

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 0, ConfidenceScore(0, nil, 0))
	assert.Equal(t, 3, ConfidenceScore(1, []float64{100}, 0))
	assert.Equal(t, 8, ConfidenceScore(2, []float64{100, 104}, 6))
	assert.Equal(t, 8, ConfidenceScore(2, []float64{50, 150}, 10))
	assert.Equal(t, 10, ConfidenceScore(5, []float64{1, 1, 1, 1}, 40))

	assert.Equal(t, models.QualityLow, qualityFor(3))
	assert.Equal(t, models.QualityMedium, qualityFor(4))
	assert.Equal(t, models.QualityHigh, qualityFor(7))
}
