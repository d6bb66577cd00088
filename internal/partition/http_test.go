package partition_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/stretchr/testify/require"
)

var testKey = partition.NewKey("mainnet", "beacon_api_eth_v1_events_block", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

func newHTTPSource(t *testing.T, baseURL string, maxRetries int) *partition.HTTPSource {
	t.Helper()
	src, err := partition.NewHTTPSource(partition.HTTPConfig{
		Logger:        logger,
		BaseURL:       baseURL,
		Database:      "default",
		MaxRetries:    maxRetries,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return src
}

func TestPartition_HTTPSource_URL(t *testing.T) {
	t.Parallel()

	src := newHTTPSource(t, "https://data.ethpandaops.io/xatu/", 0)
	require.Equal(t,
		"https://data.ethpandaops.io/xatu/mainnet/databases/default/beacon_api_eth_v1_events_block/2024/1/1.parquet",
		src.URL(testKey))
}

func TestPartition_HTTPSource_Get(t *testing.T) {
	t.Parallel()

	t.Run("success requests the partition path", func(t *testing.T) {
		t.Parallel()

		var gotPath atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath.Store(r.URL.Path)
			_, _ = w.Write([]byte("payload"))
		}))
		defer srv.Close()

		data, err := newHTTPSource(t, srv.URL, 0).Get(context.Background(), testKey)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), data)
		require.Equal(t, "/mainnet/databases/default/beacon_api_eth_v1_events_block/2024/1/1.parquet", gotPath.Load())
	})

	t.Run("404 is not found and not retried", func(t *testing.T) {
		t.Parallel()

		srv := newPartitionServer(t, http.StatusNotFound, nil)
		_, err := newHTTPSource(t, srv.URL, 3).Get(context.Background(), testKey)
		require.ErrorIs(t, err, partition.ErrNotFound)
		require.Equal(t, int64(1), srv.calls.Load())
	})

	t.Run("500 is retried then fails", func(t *testing.T) {
		t.Parallel()

		srv := newPartitionServer(t, http.StatusInternalServerError, nil)
		_, err := newHTTPSource(t, srv.URL, 2).Get(context.Background(), testKey)
		require.Error(t, err)
		require.False(t, errors.Is(err, partition.ErrNotFound))
		var statusErr *partition.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		require.Equal(t, int64(3), srv.calls.Load())
	})

	t.Run("403 is not retried", func(t *testing.T) {
		t.Parallel()

		srv := newPartitionServer(t, http.StatusForbidden, nil)
		_, err := newHTTPSource(t, srv.URL, 2).Get(context.Background(), testKey)
		require.Error(t, err)
		require.Equal(t, int64(1), srv.calls.Load())
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("payload"))
		}))
		defer srv.Close()

		data, err := newHTTPSource(t, srv.URL, 2).Get(context.Background(), testKey)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), data)
		require.Equal(t, int64(2), calls.Load())
	})

	t.Run("request timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		src, err := partition.NewHTTPSource(partition.HTTPConfig{
			Logger:         logger,
			BaseURL:        srv.URL,
			Database:       "default",
			RequestTimeout: 50 * time.Millisecond,
			MaxRetries:     -1,
		})
		require.NoError(t, err)

		_, err = src.Get(context.Background(), testKey)
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPartition_HTTPConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := partition.HTTPConfig{Logger: logger, BaseURL: "https://example.com/", Database: "default"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "https://example.com", cfg.BaseURL)
	require.Equal(t, partition.DefaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, partition.DefaultMaxRetries, cfg.MaxRetries)
	require.NotNil(t, cfg.HTTPClient)

	require.Error(t, (&partition.HTTPConfig{BaseURL: "x", Database: "default"}).Validate())
	require.Error(t, (&partition.HTTPConfig{Logger: logger, Database: "default"}).Validate())
	require.Error(t, (&partition.HTTPConfig{Logger: logger, BaseURL: "x"}).Validate())
}
