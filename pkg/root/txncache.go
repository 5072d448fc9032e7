package root

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mckoi/mckoiddb/pkg/types"
)

// defaultRootTxnCache mirrors config.defaultRootTxnCache (14 MiB, spec.md
// §4.3.4/§6.1); kept as a local constant so this package doesn't need to
// import pkg/config just for one fallback value.
const defaultRootTxnCache = 14 * 1024 * 1024

// txnCacheEntry pairs a materialized root's bytes with the byte cost
// charged against the cache's budget.
type txnCacheEntry struct {
	data []byte
}

// txnCache is a path's transaction cache (spec.md §4.3.4): a bounded LRU
// from root_node_id to materialized root data, so a new transaction can
// begin from hot data instead of re-reading block servers. Grounded on
// pkg/cache.NodeCache's byte-budget-over-item-count-ceiling pattern,
// specialized here to opaque byte blobs since the root server has no tree
// decoder of its own — that lives in the client tree store (pkg/tree).
// Entries arrive only through Engine.CacheRoot; pkg/tree's flush does not
// call it.
type txnCache struct {
	mu       sync.Mutex
	lru      *lru.Cache
	maxBytes int64
	curBytes int64
}

func newTxnCache(maxBytes int64) *txnCache {
	if maxBytes <= 0 {
		maxBytes = defaultRootTxnCache
	}
	c := &txnCache{maxBytes: maxBytes}
	l, _ := lru.NewWithEvict(1<<30, c.onEvict)
	c.lru = l
	return c
}

func (c *txnCache) onEvict(_ interface{}, value interface{}) {
	if e, ok := value.(txnCacheEntry); ok {
		c.curBytes -= int64(len(e.data))
	}
}

// Get returns the cached bytes for root, if present.
func (c *txnCache) Get(root types.NodeID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(root)
	if !ok {
		return nil, false
	}
	return v.(txnCacheEntry).data, true
}

// Put inserts materialized root data, trimming to the byte budget.
func (c *txnCache) Put(root types.NodeID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.lru.Get(root); exists {
		return
	}
	c.lru.Add(root, txnCacheEntry{data: data})
	c.curBytes += int64(len(data))
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Bytes reports the cache's current byte occupancy, for metrics.
func (c *txnCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}
