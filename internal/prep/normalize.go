package prep

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/metrics"
	"github.com/malbeclabs/blockprop/internal/stats"
)

const (
	// MaxPropagationMs caps every propagation value before any statistic is computed.
	MaxPropagationMs = 6000

	// SlowQuantile is the per-batch quantile above which an observation is slow.
	SlowQuantile = 0.75
)

// Error reports a failed normalization.
type Error struct {
	Network string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to normalize %s data: %v", e.Network, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	Logger *slog.Logger

	// FixedSlowThresholdMs pins the slow threshold. When zero the threshold is the
	// SlowQuantile of the batch being normalized, so slow flags from different batches are
	// not comparable.
	FixedSlowThresholdMs float64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.FixedSlowThresholdMs < 0 {
		return errors.New("fixed slow threshold must be >= 0")
	}
	return nil
}

type Normalizer struct {
	log *slog.Logger
	cfg Config
}

func NewNormalizer(cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Normalizer{log: cfg.Logger, cfg: cfg}, nil
}

// Processed is the output of one normalization pass.
type Processed struct {
	Network string
	Raw     *stats.Observations
	Blocks  []stats.BlockRecord
}

// Normalize turns a raw dataset into observations and block records. The input is not
// modified. Failures, including panics, are logged and returned as *Error.
func (n *Normalizer) Normalize(ds dataset.Dataset, network string) (p *Processed, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			n.log.Error("prep: failed to normalize", "network", network, "error", err)
			metrics.Errors.WithLabelValues(metrics.ErrorTypeNormalize).Inc()
			p, err = nil, &Error{Network: network, Err: err}
		}
	}()

	frame, err := dataset.Canonical(ds)
	if err != nil {
		return nil, err
	}
	obs := n.observations(frame, network)
	blocks := stats.Blocks(obs)

	metrics.NormalizedRows.WithLabelValues(network).Add(float64(obs.Len()))
	n.log.Debug("prep: normalized", "network", network, "rows", obs.Len(), "blocks", len(blocks), "slow_threshold_ms", obs.SlowThresholdMs)

	return &Processed{Network: network, Raw: obs, Blocks: blocks}, nil
}

func (n *Normalizer) observations(f *dataset.Frame, network string) *stats.Observations {
	rows := f.NumRows()
	obs := &stats.Observations{
		Network:   network,
		Slot:      slices.Clone(f.Slot),
		Epoch:     slices.Clone(f.Epoch),
		EventTime: make([]time.Time, rows),
		Hour:      make([]int, rows),
		BlockID:   make([]string, rows),
		RawMs:     slices.Clone(f.PropagationMs),
		CappedMs:  make([]float64, rows),
		Slow:      make([]bool, rows),
		Labels:    make(map[dataset.Field][]string, len(f.Labels)),
	}

	for field, col := range f.Labels {
		obs.Labels[field] = labelText(col)
	}

	for i := range rows {
		t := f.EventTime[i].UTC()
		obs.EventTime[i] = t
		obs.Hour[i] = t.Hour()
		obs.BlockID[i] = stats.BlockID(f.Slot[i], f.Epoch[i])
		obs.CappedMs[i] = math.Min(f.PropagationMs[i], MaxPropagationMs)
	}

	obs.SlowThresholdMs = n.slowThreshold(obs.CappedMs)
	for i, v := range obs.CappedMs {
		obs.Slow[i] = v > obs.SlowThresholdMs
	}
	return obs
}

func (n *Normalizer) slowThreshold(capped []float64) float64 {
	if n.cfg.FixedSlowThresholdMs > 0 {
		return n.cfg.FixedSlowThresholdMs
	}
	if len(capped) == 0 {
		return 0
	}
	return stats.Quantile(stats.Sorted(capped), SlowQuantile)
}

// labelText returns the column as text. Binary columns are decoded as UTF-8 with invalid
// sequences replaced.
func labelText(col *dataset.LabelColumn) []string {
	if col.Encoding() == dataset.EncodingText {
		return slices.Clone(col.Text)
	}
	out := make([]string, len(col.Binary))
	for i, b := range col.Binary {
		out[i] = strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return out
}
