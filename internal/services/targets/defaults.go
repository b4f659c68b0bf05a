package targets

import (
	"sort"

	"StockSentinel/internal/domain/models"
)

// Holding is a static buy/sell pair used when no generated target exists.
type Holding struct {
	Buy  float64
	Sell float64
}

// BuiltinPortfolio is used when configuration lists no portfolio.
var BuiltinPortfolio = map[string]Holding{
	"ASML":  {Buy: 633, Sell: 987},
	"SNY":   {Buy: 45, Sell: 62},
	"JD":    {Buy: 26.5, Sell: 41},
	"UNH":   {Buy: 300, Sell: 388},
	"XOM":   {Buy: 110, Sell: 130},
	"ADM":   {Buy: 50, Sell: 70},
	"BABA":  {Buy: 80, Sell: 120},
	"FSLR":  {Buy: 180, Sell: 280},
	"NKE":   {Buy: 75, Sell: 105},
	"NTR":   {Buy: 45, Sell: 65},
	"RIO":   {Buy: 55, Sell: 75},
	"TCEHY": {Buy: 35, Sell: 55},
}

const staticConfidence = 3

// StaticTarget builds the deterministic fallback target for a holding. The
// risk text records whether the dynamic store was reachable.
func StaticTarget(ticker string, h Holding, storeDown bool) models.Target {
	risk := "No recent analysis"
	if storeDown {
		risk = "Database unavailable"
	}
	return models.Target{
		Ticker:     ticker,
		BuyPrice:   h.Buy,
		SellPrice:  h.Sell,
		Confidence: staticConfidence,
		Catalysts:  []string{"Hardcoded target"},
		Risks:      []string{risk},
		Source:     models.TargetSourceStatic,
	}
}

// Tickers returns the sorted ticker list of a portfolio.
func Tickers(p map[string]Holding) []string {
	out := make([]string, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
