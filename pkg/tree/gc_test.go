package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/cache"
	"github.com/mckoi/mckoiddb/pkg/types"
)

func TestGCSweepReleasesUnreachableNodes(t *testing.T) {
	source := newFakeSource()
	tx := New("p", types.NilNodeID, source, cache.NewNodeCache(1<<20))

	root, err := tx.Insert(types.NilNodeID, key(1), types.NilNodeID)
	require.NoError(t, err)
	flushedRoot, err := tx.Flush(root)
	require.NoError(t, err)

	// A second, never-retained root: its nodes were assigned (written) but
	// nothing keeps them reachable once they're superseded.
	tx2 := New("p", types.NilNodeID, source, cache.NewNodeCache(1<<20))
	root2, err := tx2.Insert(types.NilNodeID, key(2), types.NilNodeID)
	require.NoError(t, err)
	orphanRoot, err := tx2.Flush(root2)
	require.NoError(t, err)

	before, err := source.ListAssignedIDs()
	require.NoError(t, err)
	assert.Contains(t, before, orphanRoot)

	sweeper := NewGCSweeper(GCConfig{
		Path:   "p",
		Source: source,
		Roots:  &fakeRoots{roots: []types.NodeID{flushedRoot}},
		Cache:  cache.NewNodeCache(1 << 20),
	})

	reclaimed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	after, err := source.ListAssignedIDs()
	require.NoError(t, err)
	assert.NotContains(t, after, orphanRoot)
	assert.Contains(t, after, flushedRoot)
}

func TestGCSweepLeavesReachableNodesAlone(t *testing.T) {
	source := newFakeSource()
	tx := New("p", types.NilNodeID, source, cache.NewNodeCache(1<<20))
	root := types.NilNodeID
	var err error
	for i := uint64(0); i < maxIndexRecords+5; i++ {
		root, err = tx.Insert(root, key(i), types.NilNodeID)
		require.NoError(t, err)
	}
	flushedRoot, err := tx.Flush(root)
	require.NoError(t, err)

	before, err := source.ListAssignedIDs()
	require.NoError(t, err)

	sweeper := NewGCSweeper(GCConfig{
		Path:   "p",
		Source: source,
		Roots:  &fakeRoots{roots: []types.NodeID{flushedRoot}},
		Cache:  cache.NewNodeCache(1 << 20),
	})
	reclaimed, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)

	after, err := source.ListAssignedIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestGCSweeperStartStop(t *testing.T) {
	source := newFakeSource()
	sweeper := NewGCSweeper(GCConfig{
		Path:     "p",
		Source:   source,
		Roots:    &fakeRoots{},
		Cache:    cache.NewNodeCache(1 << 20),
		Interval: 10 * time.Millisecond,
	})
	sweeper.Start()
	time.Sleep(25 * time.Millisecond)
	sweeper.Stop()
}
