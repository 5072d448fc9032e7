package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/types"
)

func TestNodeCachePutGet(t *testing.T) {
	nc := NewNodeCache(1024)
	id := types.PermanentNodeID(1)
	leaf := &types.LeafNode{NodeIDField: id, Data: []byte("hello")}

	nc.Put(id, leaf, 5)
	got, ok := nc.Get(id)
	require.True(t, ok)
	assert.Equal(t, leaf, got)
}

func TestNodeCacheEvictsOverBudget(t *testing.T) {
	nc := NewNodeCache(10)
	for i := 0; i < 5; i++ {
		id := types.PermanentNodeID(uint64(i))
		nc.Put(id, &types.LeafNode{NodeIDField: id, Data: make([]byte, 4)}, 4)
	}
	assert.LessOrEqual(t, nc.Bytes(), int64(10))
	assert.Less(t, nc.Len(), 5)
}

func TestNodeCacheKeepsFirstOnRace(t *testing.T) {
	nc := NewNodeCache(1024)
	id := types.PermanentNodeID(1)
	first := &types.LeafNode{NodeIDField: id, Data: []byte("first")}
	second := &types.LeafNode{NodeIDField: id, Data: []byte("second")}

	nc.Put(id, first, 5)
	nc.Put(id, second, 6) // should be ignored

	got, ok := nc.Get(id)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestNodeCacheGetOrDecodeCoalesces(t *testing.T) {
	nc := NewNodeCache(1 << 20)
	id := types.PermanentNodeID(1)

	var decodeCalls int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]types.Node, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			n, err := nc.GetOrDecode(id, func() (types.Node, int64, error) {
				atomic.AddInt32(&decodeCalls, 1)
				return &types.LeafNode{NodeIDField: id, Data: []byte("x")}, 1, nil
			})
			require.NoError(t, err)
			results[i] = n
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&decodeCalls), "decode must be coalesced to one call")
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestNodeCacheRemove(t *testing.T) {
	nc := NewNodeCache(1024)
	id := types.PermanentNodeID(1)
	nc.Put(id, &types.LeafNode{NodeIDField: id}, 0)
	nc.Remove(id)
	_, ok := nc.Get(id)
	assert.False(t, ok)
}
