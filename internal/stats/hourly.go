package stats

import (
	"encoding/json"
	"math"
	"slices"
)

// correlationThreshold separates a strong correlation from a minimal one.
const correlationThreshold = 0.5

type HourlyStat struct {
	Hour        int     `json:"hour"`
	MeanMinMs   float64 `json:"mean_min_ms"`
	MedianMinMs float64 `json:"median_min_ms"`
	P90MinMs    float64 `json:"p90_min_ms"`
	BlockCount  int     `json:"block_count"`
}

// Hourly aggregates block minimum propagation per hour of day, ordered by hour. Hours with
// no blocks are omitted.
func Hourly(blocks []BlockRecord) []HourlyStat {
	byHour := make(map[int][]float64)
	for _, b := range blocks {
		byHour[b.Hour] = append(byHour[b.Hour], b.MinMs)
	}
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	slices.Sort(hours)

	out := make([]HourlyStat, 0, len(hours))
	for _, h := range hours {
		sorted := Sorted(byHour[h])
		out = append(out, HourlyStat{
			Hour:        h,
			MeanMinMs:   Mean(sorted),
			MedianMinMs: Median(sorted),
			P90MinMs:    Quantile(sorted, 0.9),
			BlockCount:  len(sorted),
		})
	}
	return out
}

type CorrelationStrength string

const (
	CorrelationStrongPositive CorrelationStrength = "strong positive"
	CorrelationStrongNegative CorrelationStrength = "strong negative"
	CorrelationMinimal        CorrelationStrength = "minimal"
)

type Correlation struct {
	R        float64             `json:"r"`
	Strength CorrelationStrength `json:"strength"`
}

// Correlate returns the Pearson correlation between block count and median propagation
// across hours. R is NaN when either series is constant or there are fewer than two hours.
func Correlate(hourly []HourlyStat) Correlation {
	xs := make([]float64, len(hourly))
	ys := make([]float64, len(hourly))
	for i, h := range hourly {
		xs[i] = float64(h.BlockCount)
		ys[i] = h.MedianMinMs
	}
	r := Pearson(xs, ys)
	c := Correlation{R: r, Strength: CorrelationMinimal}
	switch {
	case r > correlationThreshold:
		c.Strength = CorrelationStrongPositive
	case r < -correlationThreshold:
		c.Strength = CorrelationStrongNegative
	}
	return c
}

// MarshalJSON encodes an undefined coefficient as null.
func (c Correlation) MarshalJSON() ([]byte, error) {
	type correlation struct {
		R        *float64            `json:"r"`
		Strength CorrelationStrength `json:"strength"`
	}
	out := correlation{Strength: c.Strength}
	if !math.IsNaN(c.R) {
		out.R = &c.R
	}
	return json.Marshal(out)
}

func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return math.NaN()
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}
