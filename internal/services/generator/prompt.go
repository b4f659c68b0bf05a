package generator

import (
	"fmt"
	"math"
	"strings"

	"StockSentinel/internal/domain/models"
	"StockSentinel/internal/services/features"
)

// Input is everything the generator knows about a ticker.
type Input struct {
	Summary models.AnalystSummary
	Price   float64
	History []models.PricePoint
}

// BuildPrompt renders the analysis request. Missing values print as N/A.
func BuildPrompt(ticker string, in Input) string {
	s := in.Summary
	price := in.Price
	if price <= 0 {
		price = s.Value(models.MetricCurrentPrice)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %s for 12-month price targets using fundamental analysis:\n\n", ticker)

	b.WriteString("CURRENT MARKET DATA:\n")
	line(&b, "Current Price", money(price))
	line(&b, "Market Cap", money(s.Value(models.MetricMarketCap)))
	line(&b, "Sector", attr(s, models.AttrSector))
	line(&b, "Industry", attr(s, models.AttrIndustry))
	line(&b, "52-Week Range", money(s.Value(models.MetricLow52w))+" - "+money(s.Value(models.MetricHigh52w)))
	line(&b, "Beta", plain(s, models.MetricBeta))

	b.WriteString("\nVALUATION METRICS:\n")
	line(&b, "P/E Ratio", plain(s, models.MetricPE))
	line(&b, "Forward P/E", plain(s, models.MetricForwardPE))
	line(&b, "PEG Ratio", plain(s, models.MetricPEG))
	line(&b, "Price/Book", plain(s, models.MetricPriceToBook))
	line(&b, "Enterprise Value", money(s.Value(models.MetricEV)))
	line(&b, "EBITDA", money(s.Value(models.MetricEBITDA)))
	line(&b, "Revenue", money(s.Value(models.MetricRevenue)))

	b.WriteString("\nFINANCIAL HEALTH:\n")
	line(&b, "Debt/Equity", plain(s, models.MetricDebtToEquity))
	line(&b, "Return on Equity", pct(s, models.MetricROE))
	line(&b, "Free Cash Flow", money(s.Value(models.MetricFreeCashFlow)))
	line(&b, "Total Cash", money(s.Value(models.MetricTotalCash)))
	line(&b, "Total Debt", money(s.Value(models.MetricTotalDebt)))

	b.WriteString("\nGROWTH & PROFITABILITY:\n")
	line(&b, "Revenue Growth", pct(s, models.MetricRevenueGrowth))
	line(&b, "Earnings Growth", pct(s, models.MetricEarningsGrowth))
	line(&b, "Profit Margins", pct(s, models.MetricProfitMargin))
	line(&b, "Gross Margins", pct(s, models.MetricGrossMargin))
	line(&b, "Dividend Yield", pct(s, models.MetricDividendYield))

	b.WriteString("\nANALYST CONSENSUS:\n")
	line(&b, "Average Target", money(s.ConsensusMean))
	line(&b, "Target Range", money(s.ConsensusLow)+" - "+money(s.ConsensusHigh))
	if s.AnalystCount > 0 {
		line(&b, "Analyst Coverage", fmt.Sprintf("%d analysts", s.AnalystCount))
	} else {
		line(&b, "Analyst Coverage", "N/A")
	}
	if s.Recommendation > 0 {
		line(&b, "Recommendation Score", fmt.Sprintf("%.2f (1=Strong Buy, 5=Strong Sell)", s.Recommendation))
	} else {
		line(&b, "Recommendation Score", "N/A")
	}
	if s.Ratings != nil {
		line(&b, "Ratings", fmt.Sprintf("%d buy / %d hold / %d sell", s.Ratings.Buy, s.Ratings.Hold, s.Ratings.Sell))
	}
	if len(s.Sources) > 0 {
		line(&b, "Data Sources", strings.Join(s.Sources, ", "))
	} else {
		line(&b, "Data Sources", "N/A")
	}
	line(&b, "Data Confidence", fmt.Sprintf("%d/10", s.Confidence))

	if len(in.History) > 0 {
		b.WriteString("\nRECENT CLOSES (oldest first):\n")
		for _, p := range in.History {
			fmt.Fprintf(&b, "- %s: %.2f\n", p.At.Format("2006-01-02"), p.Close)
		}
		if st, ok := features.Stats(in.History); ok {
			line(&b, "Period Change", fmt.Sprintf("%+.2f%%", st.Change*100))
			line(&b, "Period Range", fmt.Sprintf("$%.2f - $%.2f", st.Low, st.High))
			line(&b, "Realized Volatility (annualized)", fmt.Sprintf("%.1f%%", st.Volatility*100))
		}
	}

	b.WriteString(`
Based on this data, provide:

1. BUY TARGET: Conservative entry point for new positions
2. SELL TARGET: Profit-taking level for existing positions
3. CONFIDENCE: Rating from 1-10 based on analysis quality
4. KEY CATALYST: Most important factor driving your targets
5. RISK FACTOR: Primary concern for the investment

Requirements:
- Focus on intrinsic value versus the current price
- Consider analyst consensus but form an independent opinion
- Provide targets that are actionable over a 12-month timeframe
- Be conservative on buy targets, optimistic but realistic on sell targets

Format your response as:
BUY TARGET: $XXX.XX
SELL TARGET: $XXX.XX
CONFIDENCE: X/10
KEY CATALYST: [One sentence explanation]
RISK FACTOR: [One sentence explanation]
`)
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func attr(s models.AnalystSummary, name string) string {
	if v := s.Attributes[name]; v != "" {
		return v
	}
	return "N/A"
}

func plain(s models.AnalystSummary, name string) string {
	if !s.Has(name) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", s.Value(name))
}

// pct renders a ratio such as 0.153 as 15.30%.
func pct(s models.AnalystSummary, name string) string {
	if !s.Has(name) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", s.Value(name)*100)
}

// money renders dollars with B/M suffixes for large values.
func money(v float64) string {
	switch {
	case v == 0 || math.IsNaN(v):
		return "N/A"
	case math.Abs(v) >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case math.Abs(v) >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}
