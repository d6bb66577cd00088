package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/prep"
	"github.com/malbeclabs/blockprop/internal/stats"
)

type Request struct {
	Network string

	// Date defaults to today minus config.DefaultBlockArrivalLag.
	Date time.Time

	// ForceRefresh re-downloads the partition and bypasses the report cache.
	ForceRefresh bool
}

// EntityReport compares the entities of one label field.
type EntityReport struct {
	Field       dataset.Field             `json:"field"`
	Performance []stats.EntityPerformance `json:"performance"`
	Counts      []stats.EntityCount       `json:"counts"`
	CDF         []stats.CDFPoint          `json:"cdf"`
	Markers     []stats.PercentileMarkers `json:"markers"`
}

type BlockArrivalReport struct {
	Network     string    `json:"network"`
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`

	Processed *prep.Processed `json:"-"`

	SlowThresholdMs float64            `json:"slow_threshold_ms"`
	Summary         stats.Summary      `json:"summary"`
	Hourly          []stats.HourlyStat `json:"hourly"`
	Correlation     stats.Correlation  `json:"correlation"`

	// Clients and Countries are nil when the partition lacks the field.
	Clients   *EntityReport `json:"clients,omitempty"`
	Countries *EntityReport `json:"countries,omitempty"`
}

// BlockArrival builds the propagation report for one day of block events.
func (p *Provider) BlockArrival(ctx context.Context, req Request) (*BlockArrivalReport, error) {
	date := req.Date
	if date.IsZero() {
		date = p.cfg.Clock.Now().Add(-config.DefaultBlockArrivalLag)
	}
	date = config.Day(date)

	key := blockArrivalCacheKey(req.Network, date)
	if cached, ok := p.getCached(key, req.ForceRefresh); ok {
		return cached.(*BlockArrivalReport), nil
	}

	frame, err := p.FetchDay(ctx, req.Network, date, req.ForceRefresh)
	if err != nil {
		return nil, err
	}
	processed, err := p.cfg.Normalizer.Normalize(frame, req.Network)
	if err != nil {
		return nil, err
	}
	if processed.Raw.Len() == 0 {
		return nil, fmt.Errorf("%w for %s on %s", ErrNoData, req.Network, date.Format(time.DateOnly))
	}

	report, err := p.blockArrivalReport(processed, date)
	if err != nil {
		return nil, err
	}
	p.setCached(key, report)

	p.log.Info("provider: built block arrival report", "network", req.Network, "date", date.Format(time.DateOnly), "blocks", report.Summary.UniqueBlocks, "observations", report.Summary.TotalObservations)
	return report, nil
}

func (p *Provider) blockArrivalReport(processed *prep.Processed, date time.Time) (*BlockArrivalReport, error) {
	obs := processed.Raw
	hourly := stats.Hourly(processed.Blocks)
	report := &BlockArrivalReport{
		Network:         processed.Network,
		Date:            date,
		GeneratedAt:     p.cfg.Clock.Now().UTC(),
		Processed:       processed,
		SlowThresholdMs: obs.SlowThresholdMs,
		Summary:         stats.Summarize(obs, processed.Blocks),
		Hourly:          hourly,
		Correlation:     stats.Correlate(hourly),
	}

	var err error
	if report.Clients, err = entityReport(obs, dataset.FieldConsensusImplementation, stats.DefaultClientTopK); err != nil {
		return nil, fmt.Errorf("failed to compare clients: %w", err)
	}
	if report.Countries, err = entityReport(obs, dataset.FieldClientGeoCountry, stats.DefaultCountryTopK); err != nil {
		return nil, fmt.Errorf("failed to compare countries: %w", err)
	}
	return report, nil
}

func entityReport(obs *stats.Observations, field dataset.Field, topK int) (*EntityReport, error) {
	if !obs.Has(field) {
		return nil, nil
	}
	perf, err := stats.ByEntity(obs, field)
	if err != nil {
		return nil, err
	}
	counts, err := stats.Counts(obs, field)
	if err != nil {
		return nil, err
	}
	cdf, err := stats.BuildCDF(obs, field, stats.CDFOptions{TopK: topK})
	if err != nil {
		return nil, err
	}
	markers, err := stats.Markers(obs, field, topK)
	if err != nil {
		return nil, err
	}
	return &EntityReport{
		Field:       field,
		Performance: perf,
		Counts:      counts,
		CDF:         cdf,
		Markers:     markers,
	}, nil
}
