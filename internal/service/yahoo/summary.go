package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
)

const (
	SourceName  = "yahoo_api"
	summaryCost = 1

	summaryModules = "financialData,defaultKeyStatistics,summaryDetail,assetProfile,recommendationTrend"
)

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type summaryEnvelope struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *yahooErr                    `json:"error"`
	} `json:"quoteSummary"`
}

type trendEntry struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// summaryFields maps quoteSummary module fields to datum metric keys. Earlier
// rows win when two modules carry the same metric.
var summaryFields = []struct {
	module, field, metric string
}{
	{"financialData", "currentPrice", models.MetricCurrentPrice},
	{"financialData", "targetMeanPrice", models.MetricTargetMean},
	{"financialData", "targetHighPrice", models.MetricTargetHigh},
	{"financialData", "targetLowPrice", models.MetricTargetLow},
	{"financialData", "recommendationMean", models.MetricRecommendation},
	{"financialData", "numberOfAnalystOpinions", models.MetricAnalystCount},
	{"financialData", "debtToEquity", models.MetricDebtToEquity},
	{"financialData", "returnOnEquity", models.MetricROE},
	{"financialData", "revenueGrowth", models.MetricRevenueGrowth},
	{"financialData", "earningsGrowth", models.MetricEarningsGrowth},
	{"financialData", "profitMargins", models.MetricProfitMargin},
	{"financialData", "grossMargins", models.MetricGrossMargin},
	{"financialData", "freeCashflow", models.MetricFreeCashFlow},
	{"financialData", "totalCash", models.MetricTotalCash},
	{"financialData", "totalDebt", models.MetricTotalDebt},
	{"financialData", "ebitda", models.MetricEBITDA},
	{"financialData", "totalRevenue", models.MetricRevenue},
	{"summaryDetail", "trailingPE", models.MetricPE},
	{"summaryDetail", "marketCap", models.MetricMarketCap},
	{"summaryDetail", "fiftyTwoWeekHigh", models.MetricHigh52w},
	{"summaryDetail", "fiftyTwoWeekLow", models.MetricLow52w},
	{"summaryDetail", "dividendYield", models.MetricDividendYield},
	{"summaryDetail", "beta", models.MetricBeta},
	{"defaultKeyStatistics", "forwardPE", models.MetricForwardPE},
	{"defaultKeyStatistics", "pegRatio", models.MetricPEG},
	{"defaultKeyStatistics", "priceToBook", models.MetricPriceToBook},
	{"defaultKeyStatistics", "enterpriseValue", models.MetricEV},
	{"defaultKeyStatistics", "beta", models.MetricBeta},
}

// AnalystSource reads analyst consensus and fundamentals from quoteSummary.
type AnalystSource struct {
	c *Client
}

func NewAnalystSource(c *Client) *AnalystSource { return &AnalystSource{c: c} }

func (s *AnalystSource) Name() string { return SourceName }

func (s *AnalystSource) Cost() int { return summaryCost }

func (s *AnalystSource) Fetch(ctx context.Context, ticker string) (models.AnalystDatum, error) {
	ticker = strings.ToUpper(ticker)
	q := url.Values{}
	q.Set("modules", summaryModules)
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", s.c.summaryURL, url.PathEscape(ticker), q.Encode())

	var env summaryEnvelope
	if err := s.c.getJSON(ctx, "quoteSummary", u, &env); err != nil {
		return models.AnalystDatum{}, err
	}
	if e := env.QuoteSummary.Error; e != nil {
		return models.AnalystDatum{}, &APIError{StatusCode: 404, Endpoint: "quoteSummary", Message: e.Code + ": " + e.Description}
	}
	if len(env.QuoteSummary.Result) == 0 {
		return models.AnalystDatum{}, fmt.Errorf("quoteSummary %s: empty result", ticker)
	}
	return parseSummary(ticker, env.QuoteSummary.Result[0], s.c.now()), nil
}

func parseSummary(ticker string, modules map[string]json.RawMessage, now time.Time) models.AnalystDatum {
	d := models.AnalystDatum{
		Ticker:     ticker,
		Source:     SourceName,
		Metrics:    make(map[string]float64),
		Attributes: make(map[string]string),
		FetchedAt:  now.UTC(),
	}

	decoded := make(map[string]map[string]json.RawMessage, len(modules))
	for name, raw := range modules {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			decoded[name] = fields
		}
	}

	for _, f := range summaryFields {
		if _, done := d.Metrics[f.metric]; done {
			continue
		}
		raw, ok := decoded[f.module][f.field]
		if !ok {
			continue
		}
		var v rawValue
		if err := json.Unmarshal(raw, &v); err != nil || v.Raw == nil {
			continue
		}
		d.Metrics[f.metric] = *v.Raw
	}

	for _, attr := range []string{models.AttrSector, models.AttrIndustry} {
		var s string
		if raw, ok := decoded["assetProfile"][attr]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			d.Attributes[attr] = s
		}
	}

	var trend []trendEntry
	if raw, ok := decoded["recommendationTrend"]["trend"]; ok && json.Unmarshal(raw, &trend) == nil {
		for _, t := range trend {
			if t.Period != "0m" {
				continue
			}
			r := models.Ratings{Buy: t.StrongBuy + t.Buy, Hold: t.Hold, Sell: t.Sell + t.StrongSell}
			if r.Total() > 0 {
				d.Ratings = &r
			}
			break
		}
	}
	return d
}
