package partition

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartition_KeyedMutex(t *testing.T) {
	t.Parallel()

	var km keyedMutex
	var inside, maxInside atomic.Int64

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("a")
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), maxInside.Load())
	require.Empty(t, km.locks)

	unlockA := km.Lock("a")
	unlockB := km.Lock("b")
	require.Len(t, km.locks, 2)
	unlockB()
	unlockA()
	require.Empty(t, km.locks)
}
