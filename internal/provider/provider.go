package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/identity"
	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/malbeclabs/blockprop/internal/prep"
)

var (
	ErrNoData = errors.New("no data available")
)

type PartitionFetcher interface {
	Fetch(ctx context.Context, key partition.Key, useCache bool) partition.Result
}

type RangeAssembler interface {
	FetchRange(ctx context.Context, network, table string, start, end time.Time, useCache bool, onProgress assembler.ProgressFunc) (*assembler.Range, error)
}

type Normalizer interface {
	Normalize(ds dataset.Dataset, network string) (*prep.Processed, error)
}

type Config struct {
	Logger     *slog.Logger
	Fetcher    PartitionFetcher
	Assembler  RangeAssembler
	Normalizer Normalizer
	Parser     *identity.Parser
	Clock      clockwork.Clock

	// Table defaults to config.BlockEventsTable.
	Table string

	// RefreshTime is how long processed reports are reused before they are evicted.
	RefreshTime time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if c.Assembler == nil {
		return errors.New("assembler is required")
	}
	if c.Normalizer == nil {
		return errors.New("normalizer is required")
	}
	if c.Parser == nil {
		parser, err := identity.DefaultParser()
		if err != nil {
			return fmt.Errorf("failed to load client name parser: %w", err)
		}
		c.Parser = parser
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Table == "" {
		c.Table = config.BlockEventsTable
	}
	if c.RefreshTime < 0 {
		return errors.New("refresh time must be >= 0")
	}
	if c.RefreshTime == 0 {
		c.RefreshTime = config.DefaultRefreshTime
	}
	return nil
}

// Provider is the entry point for presentation layers: raw partitions, assembled ranges and
// processed reports.
type Provider struct {
	log *slog.Logger
	cfg Config

	cache     *ttlcache.Cache[string, any]
	cacheMu   sync.RWMutex
	closeOnce sync.Once
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, any](cfg.RefreshTime),
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go cache.Start()

	return &Provider{
		log:   cfg.Logger,
		cfg:   cfg,
		cache: cache,
	}, nil
}

// Close stops the report cache eviction loop and drops cached reports.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.cache.Stop()
		p.cache.DeleteAll()
	})
}

// FetchDay returns one day of raw observations. ErrNoData is returned when the partition is
// not published.
func (p *Provider) FetchDay(ctx context.Context, network string, date time.Time, forceRefresh bool) (*dataset.Frame, error) {
	if _, err := config.NetworkConfigFor(network); err != nil {
		return nil, err
	}

	res := p.cfg.Fetcher.Fetch(ctx, partition.NewKey(network, p.cfg.Table, date), !forceRefresh)
	switch res.Status {
	case partition.StatusFound:
		return res.Frame, nil
	case partition.StatusAbsent:
		return nil, fmt.Errorf("%w for %s on %s", ErrNoData, network, config.Day(date).Format(time.DateOnly))
	default:
		return nil, fmt.Errorf("failed to fetch %s on %s: %w", network, config.Day(date).Format(time.DateOnly), res.Err)
	}
}

// FetchRange returns the raw observations of every published day in [start, end].
func (p *Provider) FetchRange(ctx context.Context, network string, start, end time.Time, forceRefresh bool, onProgress assembler.ProgressFunc) (*assembler.Range, error) {
	if _, err := config.NetworkConfigFor(network); err != nil {
		return nil, err
	}
	return p.cfg.Assembler.FetchRange(ctx, network, p.cfg.Table, start, end, !forceRefresh, onProgress)
}

// Today returns the current UTC date.
func (p *Provider) Today() time.Time {
	return config.Day(p.cfg.Clock.Now())
}
