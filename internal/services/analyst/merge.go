package analyst

import (
	"maps"
	"math"
	"slices"

	"StockSentinel/internal/domain/models"
)

var targetMetrics = []string{models.MetricTargetMean, models.MetricTargetHigh, models.MetricTargetLow}

// Merge folds data, given in priority order, into one summary. The first
// source to report a field wins; later differing values are kept as
// conflicts.
func Merge(ticker string, data []models.AnalystDatum) models.AnalystSummary {
	s := models.AnalystSummary{
		Ticker:  ticker,
		Metrics: make(map[string]models.Provenanced),
		Quality: models.QualityFailed,
	}
	if len(data) == 0 {
		return s
	}

	attrs := make(map[string]string)
	var recs []float64
	for _, d := range data {
		s.Sources = append(s.Sources, d.Source)

		for _, name := range slices.Sorted(maps.Keys(d.Metrics)) {
			v := d.Metrics[name]
			if cur, ok := s.Metrics[name]; ok {
				if cur.Value != v {
					s.Conflicts = append(s.Conflicts, models.Conflict{Field: name, Value: v, Source: d.Source, Winner: cur.Source})
				}
				continue
			}
			s.Metrics[name] = models.Provenanced{Value: v, Source: d.Source}
		}
		for k, v := range d.Attributes {
			if _, ok := attrs[k]; !ok && v != "" {
				attrs[k] = v
			}
		}

		if s.Ratings == nil && d.Ratings != nil && d.Ratings.Total() > 0 {
			r := *d.Ratings
			s.Ratings = &r
			s.RatingsSource = d.Source
		}
		if n, ok := d.Metric(models.MetricAnalystCount); ok && int(n) > s.AnalystCount {
			s.AnalystCount = int(n)
		}
		if r, ok := d.Metric(models.MetricRecommendation); ok && r > 0 {
			recs = append(recs, r)
		}
	}
	if len(attrs) > 0 {
		s.Attributes = attrs
	}

	prices := targetPrices(data)
	if len(prices) > 2 {
		prices = removeOutliers(prices)
	}
	if len(prices) > 0 {
		s.TargetPrices = prices
		s.ConsensusMean = models.Round2(mean(prices))
		s.ConsensusHigh = models.Round2(maxOf(prices))
		s.ConsensusLow = models.Round2(minOf(prices))
	}
	if len(recs) > 0 {
		s.Recommendation = models.Round2(mean(recs))
	}

	s.Confidence = ConfidenceScore(len(data), prices, s.AnalystCount)
	s.Quality = qualityFor(s.Confidence)
	return s
}

// ConfidenceScore rates merged data from 0 to 10 on source count, number of
// target prices, their agreement and analyst coverage.
func ConfidenceScore(sources int, prices []float64, analysts int) int {
	score := min(sources*2, 6)
	if len(prices) > 0 {
		score += min(len(prices), 3)
		if len(prices) > 1 {
			if m := mean(prices); m > 0 && stddev(prices, m)/m < 0.1 {
				score++
			}
		}
	}
	switch {
	case analysts >= 10:
		score += 2
	case analysts >= 5:
		score++
	}
	return min(score, 10)
}

func qualityFor(confidence int) models.DataQuality {
	switch {
	case confidence >= 7:
		return models.QualityHigh
	case confidence >= 4:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}

func targetPrices(data []models.AnalystDatum) []float64 {
	var out []float64
	for _, d := range data {
		for _, name := range targetMetrics {
			if v, ok := d.Metric(name); ok && v > 0 && !math.IsInf(v, 0) {
				out = append(out, v)
			}
		}
	}
	return out
}

// removeOutliers drops values more than three standard deviations from the
// mean. It never returns an empty slice.
func removeOutliers(values []float64) []float64 {
	m := mean(values)
	sd := stddev(values, m)
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if math.Abs(v-m) <= 3*sd {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return values
	}
	return kept
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// stddev is the population standard deviation around m.
func stddev(vs []float64, m float64) float64 {
	acc := 0.0
	for _, v := range vs {
		acc += (v - m) * (v - m)
	}
	return math.Sqrt(acc / float64(len(vs)))
}

func maxOf(vs []float64) float64 {
	out := vs[0]
	for _, v := range vs[1:] {
		out = math.Max(out, v)
	}
	return out
}

func minOf(vs []float64) float64 {
	out := vs[0]
	for _, v := range vs[1:] {
		out = math.Min(out, v)
	}
	return out
}
