package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencerMonotonic(t *testing.T) {
	s := New(0)
	require.EqualValues(t, 1, s.Next())
	require.EqualValues(t, 2, s.Next())
	require.EqualValues(t, 2, s.Current())

	s.Reset(10)
	require.EqualValues(t, 11, s.Next())
}

func TestSequencerObserve(t *testing.T) {
	s := New(5)
	s.Observe(3)
	require.EqualValues(t, 5, s.Current())
	s.Observe(9)
	require.EqualValues(t, 10, s.Next())
}

func TestSequencerConcurrentUnique(t *testing.T) {
	s := New(0)
	const workers, each = 8, 1000

	var (
		mtx  sync.Mutex
		seen = make(map[uint64]struct{}, workers*each)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, each)
			for i := 0; i < each; i++ {
				local = append(local, s.Next())
			}
			mtx.Lock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
			mtx.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*each)
	require.EqualValues(t, workers*each, s.Current())
}
