// Package classifier turns a price and a target into an alert signal.
package classifier

import (
	"math"

	"StockSentinel/internal/domain/models"
)

const DefaultWatchBand = 0.05

type Config struct {
	// WatchBand is the fraction above the buy target that still counts as WATCH.
	WatchBand float64
}

// Classifier is a value type; Classify has no side effects.
type Classifier struct {
	band float64
}

func New(cfg Config) Classifier {
	band := cfg.WatchBand
	if band < 0 || math.IsNaN(band) {
		band = DefaultWatchBand
	}
	return Classifier{band: band}
}

// Classify applies, in order: BUY at or below buy, SELL at or above sell,
// WATCH within the band above buy, otherwise NONE.
func (c Classifier) Classify(quote models.PriceQuote, target models.Target) models.Signal {
	price := quote.Price
	sig := models.Signal{
		Ticker:     quote.Ticker,
		Kind:       c.kind(price, target),
		Price:      price,
		Target:     snapshot(target),
		Confidence: target.Confidence,
		Stale:      quote.Stale,
	}

	buyDist := pctDistance(price, target.BuyPrice)
	sellDist := pctDistance(price, target.SellPrice)
	if math.Abs(buyDist) <= math.Abs(sellDist) {
		sig.DistancePct, sig.NearestTarget = models.Round2(buyDist), "buy"
	} else {
		sig.DistancePct, sig.NearestTarget = models.Round2(sellDist), "sell"
	}

	if sig.Kind == models.SignalSell {
		sig.ProfitPct = models.Round2(buyDist)
	}
	return sig
}

func (c Classifier) kind(price float64, t models.Target) models.SignalKind {
	switch {
	case price <= t.BuyPrice:
		return models.SignalBuy
	case price >= t.SellPrice:
		return models.SignalSell
	case price <= t.BuyPrice*(1+c.band):
		return models.SignalWatch
	default:
		return models.SignalNone
	}
}

func pctDistance(price, target float64) float64 {
	if target == 0 {
		return math.Inf(1)
	}
	return (price - target) / target * 100
}

// snapshot copies the slices so the signal never aliases the caller's target.
func snapshot(t models.Target) models.Target {
	t.Catalysts = append([]string(nil), t.Catalysts...)
	t.Risks = append([]string(nil), t.Risks...)
	t.DataSources = append([]string(nil), t.DataSources...)
	return t
}
