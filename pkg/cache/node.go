package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/types"
)

type nodeEntry struct {
	node types.Node
	size int64
}

// NodeCache is the bounded, content-addressed map from permanent node id
// to decoded node of spec.md §3.6, with byte-budget LRU eviction and a
// racing-insert resolution that keeps the first decoded copy (spec.md
// §4.5). It is shared across all transactions of one client session.
type NodeCache struct {
	mu       sync.Mutex
	lru      *lru.Cache
	maxBytes int64
	curBytes int64
	sf       singleflight.Group
}

// NewNodeCache creates a node cache bounded to maxBytes of decoded node
// payload. Eviction is by byte budget, not item count, so the underlying
// LRU is given an effectively unbounded item-count ceiling and trimmed
// manually after each insert.
func NewNodeCache(maxBytes int64) *NodeCache {
	nc := &NodeCache{maxBytes: maxBytes}
	l, _ := lru.NewWithEvict(1<<30, nc.onEvict)
	nc.lru = l
	return nc
}

// onEvict runs under nc.mu (called only from the lru calls in Put and
// Remove below, which already hold it).
func (nc *NodeCache) onEvict(_ interface{}, value interface{}) {
	if e, ok := value.(nodeEntry); ok {
		nc.curBytes -= e.size
	}
}

// Get returns a cached node by id without triggering a decode.
func (nc *NodeCache) Get(id types.NodeID) (types.Node, bool) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	v, ok := nc.lru.Get(id)
	if !ok {
		return nil, false
	}
	return v.(nodeEntry).node, true
}

// Put inserts a decoded node, trimming the cache to its byte budget
// afterward. size is the node's decoded byte footprint (for a leaf,
// len(Data); for a branch, a fixed per-entry estimate).
func (nc *NodeCache) Put(id types.NodeID, node types.Node, size int64) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if _, exists := nc.lru.Get(id); exists {
		return // keep the first decoded copy (spec.md §4.5)
	}
	nc.lru.Add(id, nodeEntry{node: node, size: size})
	nc.curBytes += size
	for nc.curBytes > nc.maxBytes && nc.lru.Len() > 0 {
		nc.lru.RemoveOldest()
	}
}

// GetOrDecode returns the cached node for id, decoding via decode on a
// miss. Concurrent misses for the same id coalesce to a single decode
// (spec.md §4.5, §5: "bounded by a single decode per unique id"); decode
// itself runs outside the cache lock.
func (nc *NodeCache) GetOrDecode(id types.NodeID, decode func() (types.Node, int64, error)) (types.Node, error) {
	if n, ok := nc.Get(id); ok {
		metrics.NodeCacheHitsTotal.Inc()
		return n, nil
	}
	metrics.NodeCacheMissesTotal.Inc()

	v, err, _ := nc.sf.Do(id.String(), func() (interface{}, error) {
		if n, ok := nc.Get(id); ok {
			return n, nil
		}
		node, size, err := decode()
		if err != nil {
			return nil, err
		}
		nc.Put(id, node, size)
		return node, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.Node), nil
}

// Remove evicts id, if present. Used after structural sharing makes a
// node unreferenced (spec.md §4.4.5) to avoid serving stale cache entries
// once the caller expects the node gone.
func (nc *NodeCache) Remove(id types.NodeID) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.lru.Remove(id)
}

// Len returns the number of cached nodes (diagnostic / test use).
func (nc *NodeCache) Len() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.lru.Len()
}

// Bytes returns the current occupied byte budget (diagnostic / test use).
func (nc *NodeCache) Bytes() int64 {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.curBytes
}
