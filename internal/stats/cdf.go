package stats

import (
	"fmt"
	"math"
	"slices"

	"github.com/malbeclabs/blockprop/internal/dataset"
)

const (
	DefaultBucketSizeMs = 50
)

type CDFPoint struct {
	Entity      string  `json:"entity"`
	BucketMs    float64 `json:"bucket_ms"`
	Probability float64 `json:"probability"`
}

// Value selects the per-observation value a CDF is built from.
type Value func(obs *Observations, i int) float64

func CappedMs(obs *Observations, i int) float64 { return obs.CappedMs[i] }

type CDFOptions struct {
	// Value defaults to CappedMs.
	Value Value

	// BucketSizeMs defaults to DefaultBucketSizeMs.
	BucketSizeMs float64

	// TopK restricts the curve to the most observed entities. Zero means all entities.
	TopK int
}

// BuildCDF returns an empirical distribution per entity, entities ordered by observation
// count. Values are rounded to whole milliseconds, then to the nearest bucket. Each bucket
// gets one point with probability (i+1)/n, i being the index of the first value in the
// bucket; the final point of every entity is 1.
func BuildCDF(obs *Observations, field dataset.Field, opts CDFOptions) ([]CDFPoint, error) {
	if opts.Value == nil {
		opts.Value = CappedMs
	}
	if opts.BucketSizeMs == 0 {
		opts.BucketSizeMs = DefaultBucketSizeMs
	}
	if opts.BucketSizeMs < 0 {
		return nil, fmt.Errorf("bucket size must be > 0, got %v", opts.BucketSizeMs)
	}

	col, err := obs.Column(field)
	if err != nil {
		return nil, err
	}
	entities, err := TopK(obs, field, opts.TopK)
	if err != nil {
		return nil, err
	}
	groups, _ := groupIndices(col)

	var points []CDFPoint
	for _, entity := range entities {
		idx := groups[entity]
		buckets := make([]float64, len(idx))
		for j, i := range idx {
			buckets[j] = Bucket(opts.Value(obs, i), opts.BucketSizeMs)
		}
		points = append(points, entityCDF(entity, buckets)...)
	}
	return points, nil
}

// Bucket rounds v to whole milliseconds, then to the nearest multiple of size.
func Bucket(v, size float64) float64 {
	return math.Round(math.Round(v)/size) * size
}

func entityCDF(entity string, buckets []float64) []CDFPoint {
	n := len(buckets)
	if n == 0 {
		return nil
	}
	slices.Sort(buckets)

	var points []CDFPoint
	for i, b := range buckets {
		if len(points) == 0 || b != points[len(points)-1].BucketMs {
			points = append(points, CDFPoint{Entity: entity, BucketMs: b, Probability: float64(i+1) / float64(n)})
		}
	}
	points[len(points)-1].Probability = 1
	return points
}

type PercentileMarkers struct {
	Entity      string  `json:"entity"`
	P50         float64 `json:"p50_ms"`
	P90         float64 `json:"p90_ms"`
	P99         float64 `json:"p99_ms"`
	SampleCount int     `json:"sample_count"`
}

// Markers computes p50/p90/p99 of capped propagation for the topK most observed entities,
// directly from the values rather than from a bucketed curve.
func Markers(obs *Observations, field dataset.Field, topK int) ([]PercentileMarkers, error) {
	col, err := obs.Column(field)
	if err != nil {
		return nil, err
	}
	entities, err := TopK(obs, field, topK)
	if err != nil {
		return nil, err
	}
	groups, _ := groupIndices(col)

	markers := make([]PercentileMarkers, 0, len(entities))
	for _, entity := range entities {
		idx := groups[entity]
		values := make([]float64, len(idx))
		for j, i := range idx {
			values[j] = obs.CappedMs[i]
		}
		sorted := Sorted(values)
		markers = append(markers, PercentileMarkers{
			Entity:      entity,
			P50:         Round(Quantile(sorted, 0.5), 2),
			P90:         Round(Quantile(sorted, 0.9), 2),
			P99:         Round(Quantile(sorted, 0.99), 2),
			SampleCount: len(sorted),
		})
	}
	return markers, nil
}
