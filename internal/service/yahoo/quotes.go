package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
)

type quoteItem struct {
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
}

type yahooErr struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type quoteEnvelope struct {
	QuoteResponse struct {
		Result json.RawMessage `json:"result"`
		Error  *yahooErr       `json:"error"`
	} `json:"quoteResponse"`
}

type chartEnvelope struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *yahooErr     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// normalizeQuotes accepts either a list of quote objects or a single object
// and always yields a list.
func normalizeQuotes(raw json.RawMessage) ([]quoteItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var one quoteItem
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []quoteItem{one}, nil
	}
	var many []quoteItem
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// BulkQuotes fetches every ticker in one request. Tickers absent from the
// reply are simply missing from the result.
func (c *Client) BulkQuotes(ctx context.Context, tickers []string) models.BulkResult {
	if len(tickers) == 0 {
		return models.BulkResult{Quotes: map[string]models.PriceQuote{}, Outcome: models.OutcomeSuccess}
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(tickers, ","))
	var env quoteEnvelope
	if err := c.getJSON(ctx, "quote", c.quoteURL+"/v7/finance/quote?"+q.Encode(), &env); err != nil {
		return models.BulkResult{Outcome: Classify(err), Err: err}
	}
	if e := env.QuoteResponse.Error; e != nil {
		err := &APIError{StatusCode: 200, Endpoint: "quote", Message: e.Code + ": " + e.Description}
		return models.BulkResult{Outcome: models.OutcomeTransient, Err: err}
	}

	items, err := normalizeQuotes(env.QuoteResponse.Result)
	if err != nil {
		err = &APIError{StatusCode: 200, Endpoint: "quote", Message: "malformed result: " + err.Error(), Malformed: true}
		return models.BulkResult{Outcome: models.OutcomePermanent, Err: err}
	}

	quotes := make(map[string]models.PriceQuote, len(items))
	for _, it := range items {
		pq := models.PriceQuote{
			Ticker: strings.ToUpper(it.Symbol),
			Price:  it.RegularMarketPrice,
			AsOf:   c.asOf(it.RegularMarketTime),
			Source: models.SourceBulk,
		}
		if pq.Valid() {
			quotes[pq.Ticker] = pq
		}
	}
	return models.BulkResult{Quotes: quotes, Outcome: models.OutcomeSuccess}
}

// Quote fetches the live price for one ticker from the chart endpoint.
func (c *Client) Quote(ctx context.Context, ticker string) models.QuoteResult {
	res, err := c.chart(ctx, ticker, "1d")
	if err != nil {
		return models.QuoteResult{Outcome: Classify(err), Err: err}
	}
	pq := models.PriceQuote{
		Ticker: strings.ToUpper(ticker),
		Price:  res.Meta.RegularMarketPrice,
		AsOf:   c.asOf(res.Meta.RegularMarketTime),
		Source: models.SourceSingle,
	}
	if !pq.Valid() {
		err := fmt.Errorf("chart %s: %w", ticker, errNoPrice)
		return models.QuoteResult{Outcome: models.OutcomePermanent, Err: err}
	}
	return models.QuoteResult{Quote: &pq, Outcome: models.OutcomeSuccess}
}

// LastClose returns the most recent daily close within the last few sessions.
func (c *Client) LastClose(ctx context.Context, ticker string) models.QuoteResult {
	res, err := c.chart(ctx, ticker, "5d")
	if err != nil {
		return models.QuoteResult{Outcome: Classify(err), Err: err}
	}
	points := closes(strings.ToUpper(ticker), res)
	pq := models.PriceQuote{Ticker: strings.ToUpper(ticker), Source: models.SourceHistory, Stale: true}
	if n := len(points); n > 0 {
		pq.Price, pq.AsOf = points[n-1].Close, points[n-1].At
	} else {
		pq.Price, pq.AsOf = res.Meta.ChartPreviousClose, c.now()
	}
	if !pq.Valid() {
		err := fmt.Errorf("history %s: %w", ticker, errNoPrice)
		return models.QuoteResult{Outcome: models.OutcomePermanent, Err: err}
	}
	return models.QuoteResult{Quote: &pq, Outcome: models.OutcomeSuccess}
}

// History returns up to n most recent daily closes, oldest first.
func (c *Client) History(ctx context.Context, ticker string, n int) ([]models.PricePoint, error) {
	res, err := c.chart(ctx, ticker, "3mo")
	if err != nil {
		return nil, err
	}
	points := closes(strings.ToUpper(ticker), res)
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return points, nil
}

func (c *Client) chart(ctx context.Context, ticker, rng string) (chartResult, error) {
	q := url.Values{}
	q.Set("range", rng)
	q.Set("interval", "1d")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.quoteURL, url.PathEscape(ticker), q.Encode())

	var env chartEnvelope
	if err := c.getJSON(ctx, "chart", u, &env); err != nil {
		return chartResult{}, err
	}
	if e := env.Chart.Error; e != nil {
		return chartResult{}, &APIError{StatusCode: 404, Endpoint: "chart", Message: e.Code + ": " + e.Description}
	}
	if len(env.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("chart %s: %w", ticker, errNoPrice)
	}
	return env.Chart.Result[0], nil
}

func closes(ticker string, res chartResult) []models.PricePoint {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	cl := res.Indicators.Quote[0].Close
	out := make([]models.PricePoint, 0, len(cl))
	for i, v := range cl {
		if v == nil || *v <= 0 || i >= len(res.Timestamp) {
			continue
		}
		out = append(out, models.PricePoint{
			Ticker: ticker,
			Close:  models.Round2(*v),
			At:     time.Unix(res.Timestamp[i], 0).UTC(),
		})
	}
	return out
}

func (c *Client) asOf(unix int64) time.Time {
	if unix <= 0 {
		return c.now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}
