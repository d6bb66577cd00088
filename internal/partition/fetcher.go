package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/metrics"
)

type Status uint8

const (
	StatusFound Status = iota
	StatusAbsent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusAbsent:
		return "absent"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// Origin says where a found partition was read from.
type Origin string

const (
	OriginMemory Origin = "memory"
	OriginDisk   Origin = "disk"
	OriginRemote Origin = "remote"
)

// Result is the outcome of a single-day fetch. Frame is set only when Status is
// StatusFound; Err is set only when Status is StatusFailed.
type Result struct {
	Key    Key
	Status Status
	Origin Origin
	Frame  *dataset.Frame
	Err    error
}

type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*dataset.Frame, error)
}

type FetcherConfig struct {
	Logger   *slog.Logger
	Source   Source
	Decoder  Decoder
	CacheDir string

	// MemoryMaxRows bounds the in-memory layer by total rows held. Zero disables it.
	MemoryMaxRows int64
}

func (c *FetcherConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Source == nil {
		return errors.New("source is required")
	}
	if c.Decoder == nil {
		return errors.New("decoder is required")
	}
	if c.CacheDir == "" {
		return errors.New("cache dir is required")
	}
	if c.MemoryMaxRows < 0 {
		return errors.New("memory max rows must be >= 0")
	}
	return nil
}

// Fetcher resolves partition keys to frames through the memory layer, the disk cache and
// finally the source. It is safe for concurrent use; fetches of the same key are serialized.
// Returned frames may be shared between callers and must not be modified.
type Fetcher struct {
	log    *slog.Logger
	cfg    FetcherConfig
	disk   *DiskCache
	memory *ristretto.Cache
	locks  keyedMutex
}

func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	disk, err := NewDiskCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		log:  cfg.Logger,
		cfg:  cfg,
		disk: disk,
	}

	if cfg.MemoryMaxRows > 0 {
		f.memory, err = ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     cfg.MemoryMaxRows,
			BufferItems: 64,

			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
	}

	return f, nil
}

func (f *Fetcher) Close() {
	if f.memory != nil {
		f.memory.Close()
	}
}

func (f *Fetcher) CachePath(key Key) string {
	return f.disk.Path(key)
}

// Fetch resolves one partition. When useCache is true a readable, non-empty cache entry is
// returned without touching the source; an unreadable or empty entry is removed first.
// Downloads are persisted to the cache before decoding. Outcomes are reported in the Result,
// never as a panic or separate error.
func (f *Fetcher) Fetch(ctx context.Context, key Key, useCache bool) Result {
	key = NewKey(key.Network, key.Table, key.Date)
	unlock := f.locks.Lock(key.CacheFile())
	defer unlock()

	res := f.fetch(ctx, key, useCache)
	res.Key = key
	metrics.PartitionFetches.WithLabelValues(key.Network, res.Status.String()).Inc()
	return res
}

func (f *Fetcher) fetch(ctx context.Context, key Key, useCache bool) Result {
	log := f.log.With("key", key.String())

	if useCache {
		if frame, ok := f.fromMemory(key); ok {
			metrics.CacheHits.WithLabelValues(metrics.CacheLayerMemory).Inc()
			return Result{Status: StatusFound, Origin: OriginMemory, Frame: frame}
		}
		if frame, ok := f.fromDisk(ctx, log, key); ok {
			metrics.CacheHits.WithLabelValues(metrics.CacheLayerDisk).Inc()
			f.remember(key, frame)
			return Result{Status: StatusFound, Origin: OriginDisk, Frame: frame}
		}
	}

	start := time.Now()
	data, err := f.cfg.Source.Get(ctx, key)
	metrics.DownloadDuration.WithLabelValues(key.Network).Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrNotFound) {
		log.Info("partition: no data published")
		return Result{Status: StatusAbsent}
	}
	if err != nil {
		log.Error("partition: failed to download", "error", err)
		metrics.Errors.WithLabelValues(metrics.ErrorTypeDownload).Inc()
		return Result{Status: StatusFailed, Err: err}
	}
	metrics.DownloadBytes.WithLabelValues(key.Network).Add(float64(len(data)))
	log.Debug("partition: downloaded", "bytes", len(data), "duration", time.Since(start))

	if err := f.disk.Write(key, data); err != nil {
		log.Error("partition: failed to write cache file", "error", err)
		metrics.Errors.WithLabelValues(metrics.ErrorTypeCacheWrite).Inc()
		return Result{Status: StatusFailed, Err: err}
	}

	frame, err := f.cfg.Decoder.DecodeFile(ctx, f.disk.Path(key))
	if err != nil {
		log.Error("partition: failed to decode download", "error", err)
		metrics.Errors.WithLabelValues(metrics.ErrorTypeDecode).Inc()
		f.evict(log, key)
		return Result{Status: StatusFailed, Err: fmt.Errorf("failed to decode partition %s: %w", key, err)}
	}
	if frame.NumRows() == 0 {
		log.Info("partition: download is empty")
		f.evict(log, key)
		return Result{Status: StatusAbsent}
	}

	f.remember(key, frame)
	return Result{Status: StatusFound, Origin: OriginRemote, Frame: frame}
}

func (f *Fetcher) fromDisk(ctx context.Context, log *slog.Logger, key Key) (*dataset.Frame, bool) {
	if !f.disk.Exists(key) {
		return nil, false
	}
	frame, err := f.cfg.Decoder.DecodeFile(ctx, f.disk.Path(key))
	if err == nil && frame.NumRows() > 0 {
		log.Debug("partition: using cached file", "rows", frame.NumRows())
		return frame, true
	}
	if err != nil {
		log.Warn("partition: removing unreadable cache file", "error", err)
	} else {
		log.Warn("partition: removing empty cache file")
	}
	metrics.CacheCorruptions.Inc()
	f.evict(log, key)
	return nil, false
}

func (f *Fetcher) fromMemory(key Key) (*dataset.Frame, bool) {
	if f.memory == nil {
		return nil, false
	}
	v, ok := f.memory.Get(key.CacheFile())
	if !ok {
		return nil, false
	}
	return v.(*dataset.Frame), true
}

func (f *Fetcher) remember(key Key, frame *dataset.Frame) {
	if f.memory == nil {
		return
	}
	f.memory.Set(key.CacheFile(), frame, int64(frame.NumRows()))
	f.memory.Wait()
}

func (f *Fetcher) evict(log *slog.Logger, key Key) {
	if f.memory != nil {
		f.memory.Del(key.CacheFile())
	}
	if err := f.disk.Remove(key); err != nil {
		log.Error("partition: failed to remove cache file", "error", err)
		metrics.Errors.WithLabelValues(metrics.ErrorTypeCacheRemove).Inc()
	}
}
