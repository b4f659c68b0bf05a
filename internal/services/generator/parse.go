package generator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"StockSentinel/internal/domain/models"
)

var (
	ErrNoBuyTarget    = errors.New("response has no buy target")
	ErrNoSellTarget   = errors.New("response has no sell target")
	ErrNoConfidence   = errors.New("response has no confidence")
	ErrImplausibleBuy = errors.New("buy target too far from current price")
)

var (
	buyRe      = regexp.MustCompile(`(?i)BUY\s+TARGET\W*?\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	sellRe     = regexp.MustCompile(`(?i)SELL\s+TARGET\W*?\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	confRe     = regexp.MustCompile(`(?i)CONFIDENCE\W*?([0-9]+)`)
	catalystRe = regexp.MustCompile(`(?i)KEY\s+CATALYST[*:\s]*([^\n]+)`)
	riskRe     = regexp.MustCompile(`(?i)RISK\s+FACTOR[*:\s]*([^\n]+)`)
)

// ParseResponse extracts a target from the fixed reply format. Buy, sell and
// confidence are required; every catalyst and risk line is kept in order.
// The result is not validated.
func ParseResponse(ticker, text string, now time.Time) (models.Target, error) {
	buy, ok := money2(buyRe, text)
	if !ok {
		return models.Target{}, ErrNoBuyTarget
	}
	sell, ok := money2(sellRe, text)
	if !ok {
		return models.Target{}, ErrNoSellTarget
	}
	m := confRe.FindStringSubmatch(text)
	if m == nil {
		return models.Target{}, ErrNoConfidence
	}
	conf, err := strconv.Atoi(m[1])
	if err != nil {
		return models.Target{}, ErrNoConfidence
	}

	return models.Target{
		Ticker:      ticker,
		BuyPrice:    buy,
		SellPrice:   sell,
		Confidence:  conf,
		Catalysts:   allLines(catalystRe, text),
		Risks:       allLines(riskRe, text),
		GeneratedAt: now.UTC(),
		Source:      models.TargetSourceAI,
	}, nil
}

func money2(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return models.Round2(v), true
}

func allLines(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if v := strings.Trim(strings.TrimSpace(m[1]), "*"); v != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
