package root

import (
	"github.com/mckoi/mckoiddb/pkg/types"
)

// defaultHistoryDepth is spec.md §3.6/§4.3's "retained for up to N recent
// commits (default 64)".
const defaultHistoryDepth = 64

// historyRing is a path's fixed-depth commit history (spec.md §4.3 "history:
// ring_buffer<(root_node_id, commit_id, key_range_summary)>"). Oldest
// entries are dropped once the ring is full; a base_root that has aged out
// is reported as not found so the caller can raise CommitFault::BaseTooOld.
type historyRing struct {
	depth      int
	entries    []types.HistoryEntry // oldest first
	evictedAny bool                 // true once any entry has aged out of the ring
}

func newHistoryRing(depth int) *historyRing {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	return &historyRing{depth: depth}
}

// Add appends a newly-accepted commit, evicting the oldest entry if the
// ring is already at capacity.
func (h *historyRing) Add(entry types.HistoryEntry) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.depth {
		h.entries = h.entries[len(h.entries)-h.depth:]
		h.evictedAny = true
	}
}

// Len reports the number of retained entries.
func (h *historyRing) Len() int {
	return len(h.entries)
}

// newerThan returns every history entry strictly newer than the commit
// that produced baseRoot, and whether baseRoot was found in the ring at
// all (spec.md §4.3.2 step 3). A NilNodeID base (the state before a path's
// first commit) counts as found for as long as no entry has aged out of the
// ring, and then every retained entry is newer than it; once any entry has
// aged out, a NilNodeID base is reported as not found.
func (h *historyRing) newerThan(baseRoot types.NodeID) (newer []types.HistoryEntry, found bool) {
	if baseRoot.IsNil() {
		if h.evictedAny {
			return nil, false // the pre-first-commit state has aged out
		}
		return h.All(), true
	}
	for i, entry := range h.entries {
		if entry.Root == baseRoot {
			return append([]types.HistoryEntry(nil), h.entries[i+1:]...), true
		}
	}
	return nil, false
}

// byCommitID finds the history entry for the given commit id (spec.md
// §4.3.5's supplemented rollback), or found=false if it has aged out of
// the ring.
func (h *historyRing) byCommitID(commitID uint64) (entry types.HistoryEntry, found bool) {
	for _, e := range h.entries {
		if e.CommitID == commitID {
			return e, true
		}
	}
	return types.HistoryEntry{}, false
}

// All returns every retained entry, oldest first, for snapshot/restore.
func (h *historyRing) All() []types.HistoryEntry {
	out := make([]types.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
