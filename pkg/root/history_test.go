package root

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mckoi/mckoiddb/pkg/types"
)

func rootID(n uint64) types.NodeID { return types.PermanentNodeID(n) }

func TestHistoryRingNewerThanEmptyPath(t *testing.T) {
	h := newHistoryRing(4)
	newer, found := h.newerThan(types.NilNodeID)
	assert.True(t, found)
	assert.Empty(t, newer)
}

func TestHistoryRingNewerThanKnownBase(t *testing.T) {
	h := newHistoryRing(4)
	h.Add(types.HistoryEntry{CommitID: 0, Root: rootID(1)})
	h.Add(types.HistoryEntry{CommitID: 1, Root: rootID(2)})
	h.Add(types.HistoryEntry{CommitID: 2, Root: rootID(3)})

	newer, found := h.newerThan(rootID(1))
	assert.True(t, found)
	assert.Len(t, newer, 2)
	assert.Equal(t, rootID(2), newer[0].Root)
	assert.Equal(t, rootID(3), newer[1].Root)
}

func TestHistoryRingNewerThanUnknownBase(t *testing.T) {
	h := newHistoryRing(4)
	h.Add(types.HistoryEntry{CommitID: 0, Root: rootID(1)})
	_, found := h.newerThan(rootID(99))
	assert.False(t, found)
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	h := newHistoryRing(2)
	h.Add(types.HistoryEntry{CommitID: 0, Root: rootID(1)})
	h.Add(types.HistoryEntry{CommitID: 1, Root: rootID(2)})
	h.Add(types.HistoryEntry{CommitID: 2, Root: rootID(3)})

	assert.Equal(t, 2, h.Len())
	_, found := h.newerThan(rootID(1))
	assert.False(t, found, "entry for root 1 should have aged out")
}

func TestHistoryRingNilBaseAfterEvictionIsTooOld(t *testing.T) {
	h := newHistoryRing(1)
	h.Add(types.HistoryEntry{CommitID: 0, Root: rootID(1)})
	h.Add(types.HistoryEntry{CommitID: 1, Root: rootID(2)})

	_, found := h.newerThan(types.NilNodeID)
	assert.False(t, found)
}

func TestHistoryRingByCommitID(t *testing.T) {
	h := newHistoryRing(4)
	h.Add(types.HistoryEntry{CommitID: 5, Root: rootID(1)})
	entry, found := h.byCommitID(5)
	assert.True(t, found)
	assert.Equal(t, rootID(1), entry.Root)

	_, found = h.byCommitID(999)
	assert.False(t, found)
}
