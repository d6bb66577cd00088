package stats

import (
	"fmt"
	"math"
)

// SummaryPercentiles are reported over block minimum propagation.
var SummaryPercentiles = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99}

type Percentile struct {
	Name  string  `json:"name"`
	Q     float64 `json:"q"`
	Value float64 `json:"value_ms"`
}

type Summary struct {
	UniqueBlocks            int          `json:"unique_blocks"`
	TotalObservations       int          `json:"total_observations"`
	AvgObservationsPerBlock float64      `json:"avg_observations_per_block"`
	MedianOfBlockMedians    float64      `json:"median_of_block_medians_ms"`
	MinPropagation          []Percentile `json:"min_propagation_percentiles"`
}

// Summarize reports block and observation counts and the distribution of each block's
// fastest sighting.
func Summarize(obs *Observations, blocks []BlockRecord) Summary {
	s := Summary{
		UniqueBlocks:      len(blocks),
		TotalObservations: obs.Len(),
	}
	if len(blocks) == 0 {
		return s
	}
	s.AvgObservationsPerBlock = Round(float64(s.TotalObservations)/float64(s.UniqueBlocks), 2)

	medians := make([]float64, len(blocks))
	mins := make([]float64, len(blocks))
	for i, b := range blocks {
		medians[i] = b.MedianMs
		mins[i] = b.MinMs
	}
	s.MedianOfBlockMedians = Median(Sorted(medians))
	s.MinPropagation = Percentiles(Sorted(mins), SummaryPercentiles)
	return s
}

// Percentiles evaluates each quantile of sorted, rounded to 2 decimals.
func Percentiles(sorted []float64, qs []float64) []Percentile {
	out := make([]Percentile, len(qs))
	for i, q := range qs {
		out[i] = Percentile{
			Name:  fmt.Sprintf("p%d", int(math.Round(q*100))),
			Q:     q,
			Value: Round(Quantile(sorted, q), 2),
		}
	}
	return out
}

// Distribution describes a set of raw propagation values.
type Distribution struct {
	Count       int          `json:"count"`
	MinMs       float64      `json:"min_ms"`
	MeanMs      float64      `json:"mean_ms"`
	MedianMs    float64      `json:"median_ms"`
	P90Ms       float64      `json:"p90_ms"`
	Percentiles []Percentile `json:"percentiles"`
}

func Describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := Sorted(values)
	return Distribution{
		Count:       len(sorted),
		MinMs:       sorted[0],
		MeanMs:      Mean(sorted),
		MedianMs:    Median(sorted),
		P90Ms:       Quantile(sorted, 0.9),
		Percentiles: Percentiles(sorted, SummaryPercentiles),
	}
}
