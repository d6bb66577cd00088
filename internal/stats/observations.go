package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/malbeclabs/blockprop/internal/dataset"
)

var (
	ErrMissingField = errors.New("missing field")
)

// Observations is the normalized, column-oriented form of block sightings. All slices have
// one entry per observation.
type Observations struct {
	Network string

	Slot      []int64
	Epoch     []int64
	EventTime []time.Time
	Hour      []int
	BlockID   []string
	RawMs     []float64
	CappedMs  []float64
	Slow      []bool

	// SlowThresholdMs is the threshold the Slow flags were computed against.
	SlowThresholdMs float64

	Labels map[dataset.Field][]string
}

func (o *Observations) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Slot)
}

func (o *Observations) Has(field dataset.Field) bool {
	_, ok := o.Labels[field]
	return ok
}

// Column returns the values of a label field.
func (o *Observations) Column(field dataset.Field) ([]string, error) {
	col, ok := o.Labels[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return col, nil
}

// Filter returns the observations for which keep returns true, preserving order.
func (o *Observations) Filter(keep func(i int) bool) *Observations {
	out := &Observations{
		Network:         o.Network,
		SlowThresholdMs: o.SlowThresholdMs,
		Labels:          make(map[dataset.Field][]string, len(o.Labels)),
	}
	for field := range o.Labels {
		out.Labels[field] = []string{}
	}
	for i := range o.Len() {
		if !keep(i) {
			continue
		}
		out.Slot = append(out.Slot, o.Slot[i])
		out.Epoch = append(out.Epoch, o.Epoch[i])
		out.EventTime = append(out.EventTime, o.EventTime[i])
		out.Hour = append(out.Hour, o.Hour[i])
		out.BlockID = append(out.BlockID, o.BlockID[i])
		out.RawMs = append(out.RawMs, o.RawMs[i])
		out.CappedMs = append(out.CappedMs, o.CappedMs[i])
		out.Slow = append(out.Slow, o.Slow[i])
		for field, col := range o.Labels {
			out.Labels[field] = append(out.Labels[field], col[i])
		}
	}
	return out
}
