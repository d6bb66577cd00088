package partition_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/stretchr/testify/require"
)

func TestPartition_DiskCache(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	cache, err := partition.NewDiskCache(dir)
	require.NoError(t, err)

	require.False(t, cache.Exists(testKey))
	require.NoError(t, cache.Remove(testKey))

	require.NoError(t, cache.Write(testKey, []byte("one")))
	require.True(t, cache.Exists(testKey))
	require.Equal(t, filepath.Join(dir, testKey.CacheFile()), cache.Path(testKey))

	require.NoError(t, cache.Write(testKey, []byte("two")))
	data, err := os.ReadFile(cache.Path(testKey))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, cache.Remove(testKey))
	require.False(t, cache.Exists(testKey))
}
