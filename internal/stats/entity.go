package stats

import (
	"cmp"
	"math"
	"slices"

	"github.com/malbeclabs/blockprop/internal/dataset"
)

const (
	DefaultClientTopK  = 5
	DefaultCountryTopK = 10

	// An entity needs more than max(minComparableSamples, comparableShare*total) samples to
	// be compared against others.
	minComparableSamples = 10
	comparableShare      = 0.01
)

type EntityPerformance struct {
	Entity         string  `json:"entity"`
	MeanMs         float64 `json:"mean_ms"`
	MedianMs       float64 `json:"median_ms"`
	P95Ms          float64 `json:"p95_ms"`
	SampleCount    int     `json:"sample_count"`
	SlowRatio      float64 `json:"slow_ratio"`
	SlowPercentage float64 `json:"slow_percentage"`
	Comparable     bool    `json:"comparable"`
}

type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// groupIndices returns row indices per entity value, in first-seen order.
func groupIndices(col []string) (map[string][]int, []string) {
	groups := make(map[string][]int)
	var order []string
	for i, v := range col {
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], i)
	}
	return groups, order
}

// Counts returns the number of observations per entity, most frequent first. Ties are
// ordered by entity name.
func Counts(obs *Observations, field dataset.Field) ([]EntityCount, error) {
	col, err := obs.Column(field)
	if err != nil {
		return nil, err
	}
	groups, order := groupIndices(col)
	counts := make([]EntityCount, 0, len(order))
	for _, entity := range order {
		counts = append(counts, EntityCount{Entity: entity, Count: len(groups[entity])})
	}
	slices.SortFunc(counts, func(a, b EntityCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity, b.Entity)
	})
	return counts, nil
}

// TopK returns the k most observed entities. k <= 0 returns all of them.
func TopK(obs *Observations, field dataset.Field, k int) ([]string, error) {
	counts, err := Counts(obs, field)
	if err != nil {
		return nil, err
	}
	if k > 0 && len(counts) > k {
		counts = counts[:k]
	}
	entities := make([]string, len(counts))
	for i, c := range counts {
		entities[i] = c.Entity
	}
	return entities, nil
}

// ByEntity aggregates capped propagation per entity, sorted by median ascending.
func ByEntity(obs *Observations, field dataset.Field) ([]EntityPerformance, error) {
	col, err := obs.Column(field)
	if err != nil {
		return nil, err
	}

	threshold := math.Max(minComparableSamples, float64(obs.Len())*comparableShare)
	groups, order := groupIndices(col)
	perfs := make([]EntityPerformance, 0, len(order))
	for _, entity := range order {
		idx := groups[entity]
		values := make([]float64, len(idx))
		slow := 0
		for j, i := range idx {
			values[j] = obs.CappedMs[i]
			if obs.Slow[i] {
				slow++
			}
		}
		sorted := Sorted(values)
		ratio := float64(slow) / float64(len(idx))
		perfs = append(perfs, EntityPerformance{
			Entity:         entity,
			MeanMs:         Mean(sorted),
			MedianMs:       Median(sorted),
			P95Ms:          Quantile(sorted, 0.95),
			SampleCount:    len(idx),
			SlowRatio:      ratio,
			SlowPercentage: Round(ratio*100, 1),
			Comparable:     float64(len(idx)) > threshold,
		})
	}
	slices.SortStableFunc(perfs, func(a, b EntityPerformance) int {
		if c := cmp.Compare(a.MedianMs, b.MedianMs); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity, b.Entity)
	})
	return perfs, nil
}

// Comparable returns the entities with enough samples to be compared.
func Comparable(perfs []EntityPerformance) []EntityPerformance {
	out := make([]EntityPerformance, 0, len(perfs))
	for _, p := range perfs {
		if p.Comparable {
			out = append(out, p)
		}
	}
	return out
}
