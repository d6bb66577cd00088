package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/stats"
)

type UsersRequest struct {
	Network string

	// Window defaults to config.DefaultTimeWindow.
	Window config.TimeWindow

	ForceRefresh bool
	OnProgress   assembler.ProgressFunc
}

type UsersReport struct {
	Network     string    `json:"network"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`
	Usernames   []string  `json:"usernames"`

	Days []assembler.Day `json:"-"`
}

// Users lists the distinct operators seen over a trailing window ending yesterday.
func (p *Provider) Users(ctx context.Context, req UsersRequest) (*UsersReport, error) {
	start, end := windowRange(req.Window, p.cfg.Clock.Now())

	key := usersCacheKey(req.Network, start, end)
	if cached, ok := p.getCached(key, req.ForceRefresh); ok {
		return cached.(*UsersReport), nil
	}

	processed, days, err := p.processRange(ctx, req.Network, start, end, req.ForceRefresh, req.OnProgress)
	if err != nil {
		return nil, err
	}
	usernames, err := p.cfg.Parser.Usernames(processed.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to list usernames: %w", err)
	}
	if len(usernames) == 0 {
		return nil, fmt.Errorf("%w: no valid usernames for %s", ErrNoData, req.Network)
	}

	report := &UsersReport{
		Network:     req.Network,
		Start:       start,
		End:         end,
		GeneratedAt: p.cfg.Clock.Now().UTC(),
		Usernames:   usernames,
		Days:        days,
	}
	p.setCached(key, report)

	p.log.Info("provider: built users report", "network", req.Network, "users", len(usernames))
	return report, nil
}

type UserRequest struct {
	Network  string
	Username string

	// Window defaults to config.DefaultTimeWindow.
	Window config.TimeWindow

	ForceRefresh bool
	OnProgress   assembler.ProgressFunc
}

// UserOverview aggregates every node of one operator. Locations skip redacted cities.
type UserOverview struct {
	Username        string   `json:"username"`
	NodeCount       int      `json:"node_count"`
	Events          int      `json:"events"`
	Implementations []string `json:"implementations"`
	Versions        []string `json:"versions"`
	Locations       []string `json:"locations"`
}

type UserReport struct {
	Network     string    `json:"network"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`

	Overview UserOverview `json:"overview"`

	// Nodes is ordered by events, busiest first.
	Nodes       []NodeOverview     `json:"nodes"`
	Propagation stats.Distribution `json:"propagation"`

	Days []assembler.Day `json:"-"`
}

// User builds the report of one operator over a trailing window ending yesterday.
func (p *Provider) User(ctx context.Context, req UserRequest) (*UserReport, error) {
	if req.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	start, end := windowRange(req.Window, p.cfg.Clock.Now())

	key := userCacheKey(req.Network, req.Username, start, end)
	if cached, ok := p.getCached(key, req.ForceRefresh); ok {
		return cached.(*UserReport), nil
	}

	processed, days, err := p.processRange(ctx, req.Network, start, end, req.ForceRefresh, req.OnProgress)
	if err != nil {
		return nil, err
	}
	obs, err := p.cfg.Parser.FilterUser(processed.Raw, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to filter user %s: %w", req.Username, err)
	}
	if obs.Len() == 0 {
		return nil, fmt.Errorf("%w for user %s", ErrNoData, req.Username)
	}

	nodes := p.userNodes(obs)
	report := &UserReport{
		Network:     req.Network,
		Start:       start,
		End:         end,
		GeneratedAt: p.cfg.Clock.Now().UTC(),
		Overview:    p.userOverview(obs, req.Username, len(nodes)),
		Nodes:       nodes,
		Propagation: stats.Describe(obs.RawMs),
		Days:        days,
	}
	p.setCached(key, report)

	p.log.Info("provider: built user report", "network", req.Network, "user", req.Username, "nodes", len(nodes), "events", obs.Len())
	return report, nil
}

func (p *Provider) userOverview(obs *stats.Observations, username string, nodeCount int) UserOverview {
	distinct := func(field dataset.Field) []string {
		col, err := obs.Column(field)
		if err != nil {
			return []string{}
		}
		set := make(map[string]struct{})
		for _, v := range col {
			if v != "" {
				set[v] = struct{}{}
			}
		}
		return slices.Sorted(maps.Keys(set))
	}

	o := UserOverview{
		Username:        username,
		NodeCount:       nodeCount,
		Events:          obs.Len(),
		Implementations: distinct(dataset.FieldConsensusImplementation),
		Versions:        distinct(dataset.FieldConsensusVersion),
		Locations:       []string{},
	}

	cities, cerr := obs.Column(dataset.FieldClientGeoCity)
	countries, kerr := obs.Column(dataset.FieldClientGeoCountryCode)
	if cerr != nil || kerr != nil {
		return o
	}
	set := make(map[string]struct{})
	for i, city := range cities {
		if city == "" || countries[i] == "" || p.cfg.Parser.Redacted(city) {
			continue
		}
		set[city+", "+countries[i]] = struct{}{}
	}
	o.Locations = slices.Sorted(maps.Keys(set))
	return o
}

// userNodes describes each node of an operator from its first observation. Rows without a
// node id are skipped.
func (p *Provider) userNodes(obs *stats.Observations) []NodeOverview {
	names, err := obs.Column(dataset.FieldClientName)
	if err != nil {
		return []NodeOverview{}
	}
	ids := make([]string, len(names))
	var order []string
	seen := make(map[string]struct{})
	for i, name := range names {
		id, ok := p.cfg.Parser.NodeID(name)
		if !ok {
			continue
		}
		ids[i] = id
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}

	nodes := make([]NodeOverview, 0, len(order))
	for _, id := range order {
		sub := obs.Filter(func(i int) bool { return ids[i] == id })
		nodes = append(nodes, p.nodeOverview(sub, id))
	}
	slices.SortFunc(nodes, func(a, b NodeOverview) int {
		if a.Events != b.Events {
			return b.Events - a.Events
		}
		return strings.Compare(a.NodeID, b.NodeID)
	})
	return nodes
}
