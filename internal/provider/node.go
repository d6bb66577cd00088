package provider

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/prep"
	"github.com/malbeclabs/blockprop/internal/stats"
)

type NodeRequest struct {
	Network string
	NodeID  string

	// Window defaults to config.DefaultTimeWindow.
	Window config.TimeWindow

	ForceRefresh bool

	// OnProgress receives range fetch progress. It is not called for cached reports.
	OnProgress assembler.ProgressFunc
}

// NodeOverview describes a node from its first observation. Empty strings mean the value
// is unknown or redacted.
type NodeOverview struct {
	NodeID         string `json:"node_id"`
	Username       string `json:"username"`
	Implementation string `json:"implementation"`
	Version        string `json:"version"`
	Location       string `json:"location"`
	ASOrganization string `json:"as_organization"`
	Events         int    `json:"events"`
}

type DailyEvents struct {
	Date   time.Time `json:"date"`
	Events int       `json:"events"`
}

type NodeReport struct {
	Network     string    `json:"network"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`

	Overview    NodeOverview       `json:"overview"`
	Propagation stats.Distribution `json:"propagation"`
	Timeline    []DailyEvents      `json:"timeline"`

	// Days is the fetch outcome of every day in the window.
	Days []assembler.Day `json:"-"`
}

// Node builds the report of one node over a trailing window ending yesterday.
func (p *Provider) Node(ctx context.Context, req NodeRequest) (*NodeReport, error) {
	if req.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	start, end := windowRange(req.Window, p.cfg.Clock.Now())

	key := nodeCacheKey(req.Network, req.NodeID, start, end)
	if cached, ok := p.getCached(key, req.ForceRefresh); ok {
		return cached.(*NodeReport), nil
	}

	processed, days, err := p.processRange(ctx, req.Network, start, end, req.ForceRefresh, req.OnProgress)
	if err != nil {
		return nil, err
	}
	obs, err := p.cfg.Parser.FilterNode(processed.Raw, req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to filter node %s: %w", req.NodeID, err)
	}
	if obs.Len() == 0 {
		return nil, fmt.Errorf("%w for node %s", ErrNoData, req.NodeID)
	}

	report := &NodeReport{
		Network:     req.Network,
		Start:       start,
		End:         end,
		GeneratedAt: p.cfg.Clock.Now().UTC(),
		Overview:    p.nodeOverview(obs, req.NodeID),
		Propagation: stats.Describe(obs.RawMs),
		Timeline:    dailyEvents(obs),
		Days:        days,
	}
	p.setCached(key, report)

	p.log.Info("provider: built node report", "network", req.Network, "node", req.NodeID, "events", obs.Len())
	return report, nil
}

// processRange fetches and normalizes every published day in [start, end].
func (p *Provider) processRange(ctx context.Context, network string, start, end time.Time, forceRefresh bool, onProgress assembler.ProgressFunc) (*prep.Processed, []assembler.Day, error) {
	r, err := p.FetchRange(ctx, network, start, end, forceRefresh, onProgress)
	if err != nil {
		return nil, nil, err
	}
	if r.Absent() {
		return nil, nil, fmt.Errorf("%w for %s between %s and %s", ErrNoData, network, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	processed, err := p.cfg.Normalizer.Normalize(r.Frame, network)
	if err != nil {
		return nil, nil, err
	}
	return processed, r.Days, nil
}

func windowRange(window config.TimeWindow, now time.Time) (time.Time, time.Time) {
	if window == "" {
		window = config.DefaultTimeWindow
	}
	return window.Range(now)
}

func (p *Provider) nodeOverview(obs *stats.Observations, nodeID string) NodeOverview {
	first := func(field dataset.Field) string {
		col, err := obs.Column(field)
		if err != nil || len(col) == 0 {
			return ""
		}
		return col[0]
	}

	o := NodeOverview{
		NodeID:         nodeID,
		Implementation: first(dataset.FieldConsensusImplementation),
		Version:        first(dataset.FieldConsensusVersion),
		Events:         obs.Len(),
	}
	if username, ok := p.cfg.Parser.Username(first(dataset.FieldClientName)); ok {
		o.Username = username
	}
	city, country := first(dataset.FieldClientGeoCity), first(dataset.FieldClientGeoCountryCode)
	if city != "" && country != "" && !p.cfg.Parser.Redacted(city) {
		o.Location = city + ", " + country
	}
	if asn := first(dataset.FieldClientGeoASOrganization); !p.cfg.Parser.Redacted(asn) {
		o.ASOrganization = asn
	}
	return o
}

func dailyEvents(obs *stats.Observations) []DailyEvents {
	counts := make(map[time.Time]int)
	for _, t := range obs.EventTime {
		counts[config.Day(t)]++
	}
	out := make([]DailyEvents, 0, len(counts))
	for date, n := range counts {
		out = append(out, DailyEvents{Date: date, Events: n})
	}
	slices.SortFunc(out, func(a, b DailyEvents) int {
		return a.Date.Compare(b.Date)
	})
	return out
}
