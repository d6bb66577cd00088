package assembler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/parquet"
	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const table = "beacon_api_eth_v1_events_block"

type mockFetcher struct {
	FetchFunc func(context.Context, partition.Key, bool) partition.Result
}

func (m *mockFetcher) Fetch(ctx context.Context, key partition.Key, useCache bool) partition.Result {
	return m.FetchFunc(ctx, key, useCache)
}

func date(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func dayFrame(day, rows int) *dataset.Frame {
	f := dataset.NewFrame()
	impls := make([]string, rows)
	for i := range rows {
		slot := int64(day*10_000 + i)
		f.Slot = append(f.Slot, slot)
		f.Epoch = append(f.Epoch, slot/32)
		f.EventTime = append(f.EventTime, date(day).Add(time.Duration(i)*time.Minute))
		f.PropagationMs = append(f.PropagationMs, float64(100+i))
		impls[i] = "lighthouse"
	}
	f.Labels[dataset.FieldClientImplementation] = dataset.TextColumn(impls...)
	return f
}

// fetcherFor serves dayFrame for the days in rows and StatusAbsent for the rest.
func fetcherFor(rows map[int]int) *mockFetcher {
	return &mockFetcher{FetchFunc: func(_ context.Context, key partition.Key, _ bool) partition.Result {
		n, ok := rows[key.Date.Day()]
		if !ok {
			return partition.Result{Key: key, Status: partition.StatusAbsent}
		}
		return partition.Result{Key: key, Status: partition.StatusFound, Origin: partition.OriginRemote, Frame: dayFrame(key.Date.Day(), n)}
	}}
}

func newAssembler(t *testing.T, fetcher assembler.PartitionFetcher, concurrency int) *assembler.Assembler {
	t.Helper()
	a, err := assembler.New(assembler.Config{Logger: logger, Fetcher: fetcher, Concurrency: concurrency})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

type progressRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressRecorder) record(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func TestAssembler_FetchRange_SkipsAbsentDay(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			t.Parallel()

			a := newAssembler(t, fetcherFor(map[int]int{1: 4, 3: 2}), concurrency)
			var progress progressRecorder

			r, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(3), true, progress.record)
			require.NoError(t, err)
			require.False(t, r.Absent())
			require.Equal(t, 6, r.Frame.NumRows())

			// Day 1 rows come before day 3 rows.
			for i := range 4 {
				require.Equal(t, int64(10_000+i), r.Frame.Slot[i])
			}
			require.Equal(t, []int64{30_000, 30_001}, r.Frame.Slot[4:])

			require.Equal(t, []float64{0, 1.0 / 3, 2.0 / 3}, progress.values)

			require.Len(t, r.Days, 3)
			require.Equal(t, partition.StatusFound, r.Days[0].Status)
			require.Equal(t, 4, r.Days[0].Rows)
			require.Equal(t, partition.StatusAbsent, r.Days[1].Status)
			require.Equal(t, date(2), r.Days[1].Date)
			require.Equal(t, partition.StatusFound, r.Days[2].Status)
			require.Empty(t, r.Failed())
		})
	}
}

func TestAssembler_FetchRange_AllAbsent(t *testing.T) {
	t.Parallel()

	a := newAssembler(t, fetcherFor(nil), 1)
	r, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(2), true, nil)
	require.NoError(t, err)
	require.True(t, r.Absent())
	require.Nil(t, r.Frame)
	require.Len(t, r.Days, 2)
}

func TestAssembler_FetchRange_FailedDaysReported(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{FetchFunc: func(_ context.Context, key partition.Key, _ bool) partition.Result {
		if key.Date.Day() == 2 {
			return partition.Result{Key: key, Status: partition.StatusFailed, Err: &partition.StatusError{StatusCode: 502}}
		}
		return partition.Result{Key: key, Status: partition.StatusFound, Frame: dayFrame(key.Date.Day(), 1)}
	}}
	a := newAssembler(t, fetcher, 2)

	r, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(3), true, nil)
	require.NoError(t, err)
	require.Equal(t, 2, r.Frame.NumRows())
	failed := r.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, date(2), failed[0].Date)
	require.Error(t, failed[0].Err)
}

func TestAssembler_FetchRange_SingleDay(t *testing.T) {
	t.Parallel()

	a := newAssembler(t, fetcherFor(map[int]int{5: 3}), 1)
	var progress progressRecorder

	r, err := a.FetchRange(context.Background(), "mainnet", table, date(5), date(5), true, progress.record)
	require.NoError(t, err)
	require.Equal(t, 3, r.Frame.NumRows())
	require.Equal(t, []float64{0}, progress.values)
}

func TestAssembler_FetchRange_InvalidRange(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	fetcher := &mockFetcher{FetchFunc: func(_ context.Context, key partition.Key, _ bool) partition.Result {
		calls.Add(1)
		return partition.Result{Key: key, Status: partition.StatusAbsent}
	}}
	a := newAssembler(t, fetcher, 1)
	var progress progressRecorder

	_, err := a.FetchRange(context.Background(), "mainnet", table, date(3), date(1), true, progress.record)
	require.ErrorIs(t, err, assembler.ErrInvalidRange)
	require.Zero(t, calls.Load())
	require.Empty(t, progress.values)
}

func TestAssembler_FetchRange_SchemaMismatch(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{FetchFunc: func(_ context.Context, key partition.Key, _ bool) partition.Result {
		f := dayFrame(key.Date.Day(), 2)
		if key.Date.Day() == 2 {
			f.Labels[dataset.FieldClientGeoCountry] = dataset.TextColumn("Germany", "France")
		}
		return partition.Result{Key: key, Status: partition.StatusFound, Frame: f}
	}}
	a := newAssembler(t, fetcher, 1)

	_, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(2), true, nil)
	require.ErrorIs(t, err, dataset.ErrSchemaMismatch)
}

func TestAssembler_FetchRange_PassesUseCache(t *testing.T) {
	t.Parallel()

	var sawFalse atomic.Bool
	fetcher := &mockFetcher{FetchFunc: func(_ context.Context, key partition.Key, useCache bool) partition.Result {
		if !useCache {
			sawFalse.Store(true)
		}
		return partition.Result{Key: key, Status: partition.StatusAbsent}
	}}
	a := newAssembler(t, fetcher, 1)

	_, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(1), false, nil)
	require.NoError(t, err)
	require.True(t, sawFalse.Load())
}

func TestAssembler_Dates(t *testing.T) {
	t.Parallel()

	got := assembler.Dates(time.Date(2024, 2, 28, 23, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC))
	require.Equal(t, []time.Time{
		time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, got)
}

func TestAssembler_FetchRange_WithPartitionFetcher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	codec, err := parquet.NewCodec(logger)
	require.NoError(t, err)
	defer codec.Close()

	payloads := map[string][]byte{}
	for day, rows := range map[int]int{1: 3, 3: 5} {
		data, err := codec.Encode(ctx, dayFrame(day, rows))
		require.NoError(t, err)
		payloads[time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC).Format("2006/1/2")] = data
	}

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		prefix := "/mainnet/databases/default/" + table + "/"
		data, ok := payloads[strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), ".parquet")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	src, err := partition.NewHTTPSource(partition.HTTPConfig{Logger: logger, BaseURL: srv.URL, Database: "default"})
	require.NoError(t, err)
	fetcher, err := partition.NewFetcher(partition.FetcherConfig{Logger: logger, Source: src, Decoder: codec, CacheDir: t.TempDir()})
	require.NoError(t, err)
	defer fetcher.Close()

	a := newAssembler(t, fetcher, 2)
	var progress progressRecorder

	r, err := a.FetchRange(ctx, "mainnet", table, date(1), date(3), true, progress.record)
	require.NoError(t, err)
	require.Equal(t, 8, r.Frame.NumRows())
	require.Equal(t, []float64{0, 1.0 / 3, 2.0 / 3}, progress.values)
	require.Equal(t, int64(3), calls.Load())

	// Found days come from the cache; the absent day is asked for again.
	r, err = a.FetchRange(ctx, "mainnet", table, date(1), date(3), true, nil)
	require.NoError(t, err)
	require.Equal(t, 8, r.Frame.NumRows())
	require.Equal(t, partition.OriginDisk, r.Days[0].Origin)
	require.Equal(t, int64(4), calls.Load())
}

func TestAssembler_Close_StopsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, err := assembler.New(assembler.Config{Logger: logger, Fetcher: fetcherFor(map[int]int{1: 2, 2: 2, 3: 2}), Concurrency: 3})
	require.NoError(t, err)

	r, err := a.FetchRange(context.Background(), "mainnet", table, date(1), date(3), true, nil)
	require.NoError(t, err)
	require.Equal(t, 6, r.Frame.NumRows())

	a.Close()
}
