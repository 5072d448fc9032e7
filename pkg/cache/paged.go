package cache

import "sync"

// DefaultPageSize is the minimum page size spec.md §3.6/§4.4.7 requires
// ("fixed-size pages, default ≥ 4 KiB").
const DefaultPageSize = 4096

// PagedCache wraps an underlying sequential byte source with fixed-size,
// hash-mapped pages (spec.md §3.6, §4.4.7). It never silently drops pages
// during a read: a miss always calls the supplied loader and installs the
// result before returning it.
type PagedCache struct {
	mu       sync.Mutex
	pageSize int64
	pages    map[int64][]byte // page number -> page bytes
	maxPages int
	order    []int64 // insertion order, for simple FIFO-ish clear_if_over
}

// NewPagedCache creates a paged cache with the given page size (rounded up
// to DefaultPageSize if smaller) and a maximum resident page count.
func NewPagedCache(pageSize int64, maxPages int) *PagedCache {
	if pageSize < DefaultPageSize {
		pageSize = DefaultPageSize
	}
	return &PagedCache{
		pageSize: pageSize,
		pages:    make(map[int64][]byte),
		maxPages: maxPages,
	}
}

// PageSize returns the cache's fixed page size.
func (c *PagedCache) PageSize() int64 {
	return c.pageSize
}

// Read returns length bytes starting at offset, loading any pages not
// already resident via loader(pageOffset, pageSize) []byte, error.
func (c *PagedCache) Read(offset, length int64, loader func(pageOffset, pageSize int64) ([]byte, error)) ([]byte, error) {
	out := make([]byte, 0, length)
	for remaining, pos := length, offset; remaining > 0; {
		pageNo := pos / c.pageSize
		pageOff := pos % c.pageSize

		page, err := c.getPage(pageNo, loader)
		if err != nil {
			return nil, err
		}

		avail := int64(len(page)) - pageOff
		if avail < 0 {
			avail = 0
		}
		take := remaining
		if take > avail {
			take = avail
		}
		if take <= 0 {
			break // loader returned a short final page; stop at EOF
		}
		out = append(out, page[pageOff:pageOff+take]...)
		remaining -= take
		pos += take
	}
	return out, nil
}

func (c *PagedCache) getPage(pageNo int64, loader func(int64, int64) ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if page, ok := c.pages[pageNo]; ok {
		c.mu.Unlock()
		return page, nil
	}
	c.mu.Unlock()

	page, err := loader(pageNo*c.pageSize, c.pageSize)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.pages[pageNo]; ok {
		return existing, nil // racing load lost; keep the first copy
	}
	c.pages[pageNo] = page
	c.order = append(c.order, pageNo)
	c.clearIfOverLocked()
	return page, nil
}

// Invalidate drops any resident pages overlapping [offset, offset+length).
func (c *PagedCache) Invalidate(offset, length int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := offset / c.pageSize
	last := (offset + length - 1) / c.pageSize
	for p := first; p <= last; p++ {
		delete(c.pages, p)
	}
	c.compactOrderLocked()
}

// ClearIfOver drops the oldest resident pages until the cache holds at
// most size pages (spec.md §4.4.7: "bulk clear_if_over(size)").
func (c *PagedCache) ClearIfOver(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxPages = size
	c.clearIfOverLocked()
}

func (c *PagedCache) clearIfOverLocked() {
	if c.maxPages <= 0 {
		return // unlimited
	}
	for len(c.pages) > c.maxPages && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.pages, oldest)
	}
}

func (c *PagedCache) compactOrderLocked() {
	kept := c.order[:0]
	for _, p := range c.order {
		if _, ok := c.pages[p]; ok {
			kept = append(kept, p)
		}
	}
	c.order = kept
}

// Len reports the number of resident pages (diagnostic / test use).
func (c *PagedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}
