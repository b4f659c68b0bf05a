package models

import "time"

type Ratings struct {
	Buy  int `json:"buy"`
	Hold int `json:"hold"`
	Sell int `json:"sell"`
}

func (r Ratings) Total() int { return r.Buy + r.Hold + r.Sell }

// Well-known AnalystDatum metric keys.
const (
	MetricTargetMean     = "target_mean"
	MetricTargetHigh     = "target_high"
	MetricTargetLow      = "target_low"
	MetricAnalystCount   = "analyst_count"
	MetricRecommendation = "recommendation_mean"
	MetricCurrentPrice   = "current_price"
	MetricPE             = "pe_ratio"
	MetricForwardPE      = "forward_pe"
	MetricPEG            = "peg_ratio"
	MetricPriceToBook    = "price_to_book"
	MetricDebtToEquity   = "debt_to_equity"
	MetricROE            = "roe"
	MetricRevenueGrowth  = "revenue_growth"
	MetricEarningsGrowth = "earnings_growth"
	MetricProfitMargin   = "profit_margin"
	MetricGrossMargin    = "gross_margin"
	MetricFreeCashFlow   = "free_cash_flow"
	MetricTotalCash      = "total_cash"
	MetricTotalDebt      = "total_debt"
	MetricMarketCap      = "market_cap"
	MetricEV             = "enterprise_value"
	MetricEBITDA         = "ebitda"
	MetricRevenue        = "revenue"
	MetricHigh52w        = "fifty_two_week_high"
	MetricLow52w         = "fifty_two_week_low"
	MetricBeta           = "beta"
	MetricDividendYield  = "dividend_yield"

	AttrSector   = "sector"
	AttrIndustry = "industry"
)

// AnalystDatum is what one source reported for one ticker.
type AnalystDatum struct {
	Ticker     string             `json:"ticker"`
	Source     string             `json:"source"`
	Ratings    *Ratings           `json:"ratings,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
	Attributes map[string]string  `json:"attributes,omitempty"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// Metric returns the named metric and whether it is present.
func (d AnalystDatum) Metric(name string) (float64, bool) {
	v, ok := d.Metrics[name]
	return v, ok
}

type DataQuality string

const (
	QualityHigh   DataQuality = "high"
	QualityMedium DataQuality = "medium"
	QualityLow    DataQuality = "low"
	QualityFailed DataQuality = "failed"
)

// Provenanced is a merged value plus the source it came from.
type Provenanced struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// Conflict records a value that lost to a higher-priority source.
type Conflict struct {
	Field  string  `json:"field"`
	Value  float64 `json:"value"`
	Source string  `json:"source"`
	Winner string  `json:"winner"`
}

// AnalystSummary is the merged, scored view of every AnalystDatum for a ticker.
type AnalystSummary struct {
	Ticker         string                 `json:"ticker"`
	Metrics        map[string]Provenanced `json:"metrics"`
	Attributes     map[string]string      `json:"attributes,omitempty"`
	Ratings        *Ratings               `json:"ratings,omitempty"`
	RatingsSource  string                 `json:"ratings_source,omitempty"`
	Conflicts      []Conflict             `json:"conflicts,omitempty"`
	TargetPrices   []float64              `json:"target_prices,omitempty"`
	ConsensusMean  float64                `json:"consensus_mean,omitempty"`
	ConsensusHigh  float64                `json:"consensus_high,omitempty"`
	ConsensusLow   float64                `json:"consensus_low,omitempty"`
	AnalystCount   int                    `json:"analyst_count"`
	Recommendation float64                `json:"recommendation_mean,omitempty"`
	Confidence     int                    `json:"confidence"`
	Quality        DataQuality            `json:"quality"`
	Sources        []string               `json:"sources"`
}

// Value returns a merged metric value or 0 when absent.
func (s AnalystSummary) Value(name string) float64 {
	return s.Metrics[name].Value
}

// Has reports whether a merged metric is present.
func (s AnalystSummary) Has(name string) bool {
	_, ok := s.Metrics[name]
	return ok
}
