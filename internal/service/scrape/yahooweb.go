package scrape

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"StockSentinel/internal/domain/models"
)

const YahooWebName = "yahoo_web"

// YahooWeb scrapes mean, high and low price targets from the public analysis
// page.
type YahooWeb struct {
	f fetcher
}

func NewYahooWeb(baseURL string, opts ...Option) *YahooWeb {
	if baseURL == "" {
		baseURL = "https://finance.yahoo.com"
	}
	return &YahooWeb{f: newFetcher(baseURL, opts)}
}

func (y *YahooWeb) Name() string { return YahooWebName }

func (y *YahooWeb) Cost() int { return Cost }

func (y *YahooWeb) Fetch(ctx context.Context, ticker string) (models.AnalystDatum, error) {
	ticker = strings.ToUpper(ticker)
	doc, err := y.f.document(ctx, fmt.Sprintf("%s/quote/%s/analysis", y.f.baseURL, ticker))
	if err != nil {
		return models.AnalystDatum{}, err
	}

	d := parseYahooWeb(doc)
	d.Ticker, d.Source, d.FetchedAt = ticker, YahooWebName, y.f.now().UTC()
	if len(d.Metrics) == 0 {
		return models.AnalystDatum{}, fmt.Errorf("yahoo web %s: %w", ticker, ErrNothingParsed)
	}
	return d, nil
}

var yahooWebLabels = []struct {
	metric   string
	keywords []string
}{
	{models.MetricTargetMean, []string{"mean target", "average"}},
	{models.MetricTargetHigh, []string{"high target", "highest"}},
	{models.MetricTargetLow, []string{"low target", "lowest"}},
}

// parseYahooWeb reads leaf elements holding a bare decimal and labels them by
// their parent's text. The first match per label wins.
func parseYahooWeb(doc *goquery.Document) models.AnalystDatum {
	d := models.AnalystDatum{Metrics: make(map[string]float64)}
	doc.Find("span, div, td").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		text := clean(s.Text())
		if !decimalRe.MatchString(text) {
			return
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
		if err != nil || v <= 0 {
			return
		}
		parent := strings.ToLower(clean(s.Parent().Text()))
		for _, l := range yahooWebLabels {
			if _, done := d.Metrics[l.metric]; done {
				continue
			}
			if containsAny(parent, l.keywords) {
				d.Metrics[l.metric] = v
				return
			}
		}
	})
	return d
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
