package models

type SignalKind string

const (
	SignalBuy   SignalKind = "BUY"
	SignalSell  SignalKind = "SELL"
	SignalWatch SignalKind = "WATCH"
	SignalNone  SignalKind = "NONE"
)

// Actionable reports whether the signal should be surfaced as an alert.
func (k SignalKind) Actionable() bool { return k != SignalNone }

type Signal struct {
	Ticker        string     `json:"ticker"`
	Kind          SignalKind `json:"kind"`
	Price         float64    `json:"price"`
	Target        Target     `json:"target"`
	DistancePct   float64    `json:"distance_pct"`
	NearestTarget string     `json:"nearest_target"` // "buy" or "sell"
	// ProfitPct is the gain versus the buy target, set on SELL signals.
	ProfitPct  float64 `json:"profit_pct,omitempty"`
	Confidence int     `json:"confidence"`
	Stale      bool    `json:"stale,omitempty"`
}
