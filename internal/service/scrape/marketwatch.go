package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"StockSentinel/internal/domain/models"
)

const MarketWatchName = "marketwatch"

var (
	targetLabelRe = regexp.MustCompile(`(?i)(price target|target price|consensus)`)
	analystsRe    = regexp.MustCompile(`(?i)(\d+)\s*analysts?`)
)

// MarketWatch scrapes the analyst estimates page for the consensus target,
// analyst count and buy/hold/sell distribution.
type MarketWatch struct {
	f fetcher
}

func NewMarketWatch(baseURL string, opts ...Option) *MarketWatch {
	if baseURL == "" {
		baseURL = "https://www.marketwatch.com"
	}
	return &MarketWatch{f: newFetcher(baseURL, opts)}
}

func (m *MarketWatch) Name() string { return MarketWatchName }

func (m *MarketWatch) Cost() int { return Cost }

func (m *MarketWatch) Fetch(ctx context.Context, ticker string) (models.AnalystDatum, error) {
	ticker = strings.ToUpper(ticker)
	u := fmt.Sprintf("%s/investing/stock/%s/analystestimates", m.f.baseURL, strings.ToLower(ticker))
	doc, err := m.f.document(ctx, u)
	if err != nil {
		return models.AnalystDatum{}, err
	}

	d := parseMarketWatch(doc)
	d.Ticker, d.Source, d.FetchedAt = ticker, MarketWatchName, m.f.now().UTC()
	if _, ok := d.Metrics[models.MetricTargetMean]; !ok && d.Ratings == nil {
		return models.AnalystDatum{}, fmt.Errorf("marketwatch %s: %w", ticker, ErrNothingParsed)
	}
	return d, nil
}

func parseMarketWatch(doc *goquery.Document) models.AnalystDatum {
	d := models.AnalystDatum{Metrics: make(map[string]float64)}
	var ratings models.Ratings

	// Snapshot and ratings tables: label in the first cell, current value in
	// the second.
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(clean(cells.Eq(0).Text()))
		value := clean(cells.Eq(1).Text())

		switch {
		case targetLabelRe.MatchString(label):
			if _, done := d.Metrics[models.MetricTargetMean]; !done {
				if v, ok := parseMoney(value); ok {
					d.Metrics[models.MetricTargetMean] = v
				}
			}
		case strings.Contains(label, "number of ratings"), strings.Contains(label, "analysts"):
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.Metrics[models.MetricAnalystCount] = float64(n)
			}
		case label == "buy" || label == "overweight":
			ratings.Buy += atoi(value)
		case label == "hold":
			ratings.Hold += atoi(value)
		case label == "sell" || label == "underweight":
			ratings.Sell += atoi(value)
		}
	})

	// Free-text fallbacks for layouts without tables.
	if _, ok := d.Metrics[models.MetricTargetMean]; !ok {
		doc.Find("span, div, td, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if s.Children().Length() > 0 {
				return true
			}
			text := clean(s.Text())
			if !strings.Contains(text, "$") || !targetLabelRe.MatchString(text) {
				return true
			}
			if v, ok := parseMoney(text[strings.Index(text, "$"):]); ok {
				d.Metrics[models.MetricTargetMean] = v
				return false
			}
			return true
		})
	}
	if _, ok := d.Metrics[models.MetricAnalystCount]; !ok {
		if m := analystsRe.FindStringSubmatch(doc.Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				d.Metrics[models.MetricAnalystCount] = float64(n)
			}
		}
	}

	if ratings.Total() > 0 {
		d.Ratings = &ratings
	}
	return d
}

func atoi(s string) int {
	if !intRe.MatchString(s) {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
