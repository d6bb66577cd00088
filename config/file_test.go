package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_LoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blockprop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network: holesky
cache_dir: /tmp/xatu
concurrency: 4
request_timeout: 30s
slow_threshold_ms: 1500
`), 0o644))

	f, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.NetworkHolesky, f.Network)
	require.Equal(t, "/tmp/xatu", f.CacheDir)
	require.Equal(t, 4, f.Concurrency)
	require.Equal(t, 30*time.Second, f.RequestTimeout)
	require.Equal(t, 1500.0, f.SlowThresholdMs)
}

func TestConfig_LoadFile_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	badNetwork := filepath.Join(dir, "network.yaml")
	require.NoError(t, os.WriteFile(badNetwork, []byte("network: goerli\n"), 0o644))
	_, err := config.LoadFile(badNetwork)
	require.ErrorIs(t, err, config.ErrUnsupportedNetwork)

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("concurrency: [1, 2"), 0o644))
	_, err = config.LoadFile(badYAML)
	require.Error(t, err)

	_, err = config.LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
