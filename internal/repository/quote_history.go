package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/domain/repository"
	applogger "StockSentinel/pkg/logger"
)

const quotesTable = "quotes"

// QuoteSchema returns the idempotent DDL for the quote history table.
func QuoteSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			ts      DateTime64(3, 'UTC'),
			ticker  LowCardinality(String),
			price   Float64,
			source  LowCardinality(String),
			stale   UInt8
		) ENGINE = ReplacingMergeTree
		ORDER BY (ticker, ts)
		TTL toDateTime(ts) + INTERVAL 2 YEAR`, database, quotesTable),
	}
}

// ClickHouseQuoteHistory records every collected quote and serves daily
// closes back for target analysis.
type ClickHouseQuoteHistory struct {
	db    *sql.DB
	table string
	log   *applogger.Logger
}

func NewClickHouseQuoteHistory(db *sql.DB, database string, l *applogger.Logger) *ClickHouseQuoteHistory {
	return &ClickHouseQuoteHistory{db: db, table: database + "." + quotesTable, log: l}
}

func (h *ClickHouseQuoteHistory) Record(ctx context.Context, quotes []models.PriceQuote) error {
	q, args := buildQuoteInsert(h.table, quotes)
	if q == "" {
		return nil
	}
	start := time.Now()
	if _, err := h.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record quotes: %w", err)
	}
	h.log.Debug("quotes recorded",
		applogger.Int("rows", len(args)/5),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

// Recent returns up to n daily closes for ticker, oldest first.
func (h *ClickHouseQuoteHistory) Recent(ctx context.Context, ticker string, n int) ([]models.PricePoint, error) {
	q := fmt.Sprintf(`
		SELECT toDate(ts) AS day, argMax(price, ts) AS close
		FROM %s
		WHERE ticker = ?
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?`, h.table)
	rows, err := h.db.QueryContext(ctx, q, strings.ToUpper(ticker), n)
	if err != nil {
		return nil, fmt.Errorf("recent quotes %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		p := models.PricePoint{Ticker: strings.ToUpper(ticker)}
		if err := rows.Scan(&p.At, &p.Close); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// buildQuoteInsert renders one multi-row INSERT. Invalid quotes are skipped.
func buildQuoteInsert(table string, quotes []models.PriceQuote) (string, []interface{}) {
	values := make([]string, 0, len(quotes))
	args := make([]interface{}, 0, len(quotes)*5)
	for _, q := range quotes {
		if !q.Valid() {
			continue
		}
		stale := uint8(0)
		if q.Stale {
			stale = 1
		}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, q.AsOf.UTC(), q.Ticker, q.Price, string(q.Source), stale)
	}
	if len(values) == 0 {
		return "", nil
	}
	return fmt.Sprintf("INSERT INTO %s (ts, ticker, price, source, stale) VALUES %s", table, strings.Join(values, ", ")), args
}

type chartFetcher interface {
	History(ctx context.Context, ticker string, n int) ([]models.PricePoint, error)
}

// ChartQuoteHistory serves closes straight from the price provider when no
// history database is configured. Record is a no-op.
type ChartQuoteHistory struct {
	src chartFetcher
}

func NewChartQuoteHistory(src chartFetcher) *ChartQuoteHistory {
	return &ChartQuoteHistory{src: src}
}

func (h *ChartQuoteHistory) Record(context.Context, []models.PriceQuote) error { return nil }

func (h *ChartQuoteHistory) Recent(ctx context.Context, ticker string, n int) ([]models.PricePoint, error) {
	return h.src.History(ctx, ticker, n)
}

var (
	_ repository.QuoteHistory = (*ClickHouseQuoteHistory)(nil)
	_ repository.QuoteHistory = (*ChartQuoteHistory)(nil)
)
