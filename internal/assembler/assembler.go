package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/partition"
)

const (
	defaultConcurrency = 1
)

var (
	ErrInvalidRange = errors.New("invalid date range")
)

type PartitionFetcher interface {
	Fetch(ctx context.Context, key partition.Key, useCache bool) partition.Result
}

// ProgressFunc receives the completed fraction of a range fetch, in [0, 1).
type ProgressFunc func(fraction float64)

type Config struct {
	Logger  *slog.Logger
	Fetcher PartitionFetcher

	// Concurrency is the number of days fetched in parallel.
	Concurrency int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	return nil
}

type Assembler struct {
	log  *slog.Logger
	cfg  Config
	pool pond.ResultPool[partition.Result]
}

func New(cfg Config) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Assembler{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[partition.Result](cfg.Concurrency),
	}, nil
}

func (a *Assembler) Close() {
	a.pool.StopAndWait()
}

// Day is the outcome for one date of a range.
type Day struct {
	Date   time.Time
	Status partition.Status
	Origin partition.Origin
	Rows   int
	Err    error
}

type Range struct {
	Network string
	Table   string
	Start   time.Time
	End     time.Time
	Days    []Day

	// Frame holds the found days concatenated in date order, or nil when no day was found.
	Frame *dataset.Frame
}

func (r *Range) Absent() bool {
	return r.Frame == nil
}

func (r *Range) Failed() []Day {
	var failed []Day
	for _, d := range r.Days {
		if d.Status == partition.StatusFailed {
			failed = append(failed, d)
		}
	}
	return failed
}

// Dates returns every day in [start, end] in UTC.
func Dates(start, end time.Time) []time.Time {
	start, end = config.Day(start), config.Day(end)
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// FetchRange fetches every day in [start, end] and concatenates the found days. Absent and
// failed days are skipped and reported in Range.Days. onProgress, if set, is called with 0
// before the first fetch and with done/total after each day while days remain.
func (a *Assembler) FetchRange(ctx context.Context, network, table string, start, end time.Time, useCache bool, onProgress ProgressFunc) (*Range, error) {
	start, end = config.Day(start), config.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	dates := Dates(start, end)
	total := len(dates)
	progress := newProgress(total, onProgress)
	progress.start()

	group := a.pool.NewGroupContext(ctx)
	for _, date := range dates {
		key := partition.NewKey(network, table, date)
		group.Submit(func() partition.Result {
			res := a.cfg.Fetcher.Fetch(ctx, key, useCache)
			progress.done()
			return res
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch range: %w", err)
	}

	r := &Range{Network: network, Table: table, Start: start, End: end, Days: make([]Day, total)}
	var frames []*dataset.Frame
	counts := map[partition.Status]int{}
	for i, res := range results {
		day := Day{Date: dates[i], Status: res.Status, Origin: res.Origin, Err: res.Err}
		if res.Status == partition.StatusFound {
			day.Rows = res.Frame.NumRows()
			frames = append(frames, res.Frame)
		}
		r.Days[i] = day
		counts[res.Status]++
	}

	a.log.Info("assembler: fetched range",
		"network", network, "table", table,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly),
		"found", counts[partition.StatusFound], "absent", counts[partition.StatusAbsent], "failed", counts[partition.StatusFailed])

	if len(frames) == 0 {
		return r, nil
	}
	r.Frame, err = dataset.Concat(frames...)
	if err != nil {
		return nil, fmt.Errorf("failed to concatenate partitions: %w", err)
	}
	return r, nil
}

type progress struct {
	mu    sync.Mutex
	total int
	count int
	fn    ProgressFunc
}

func newProgress(total int, fn ProgressFunc) *progress {
	return &progress{total: total, fn: fn}
}

func (p *progress) start() {
	if p.fn != nil {
		p.fn(0)
	}
}

func (p *progress) done() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.count < p.total {
		p.fn(float64(p.count) / float64(p.total))
	}
}
