package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/types"
)

func testKey(n uint64) types.Key { return types.NewKey(0, 0, n) }

func TestSessionBeginInsertCommit(t *testing.T) {
	c := newTestCluster(t)
	path := types.PathName("/test/path")

	s, err := Open(c.sessionConfig(path))
	require.NoError(t, err)

	tx, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(testKey(1), types.PermanentNodeID(100)))
	require.NoError(t, tx.Insert(testKey(2), types.PermanentNodeID(200)))

	newRoot, err := tx.Commit()
	require.NoError(t, err)
	assert.True(t, newRoot.IsPermanent())

	tx2, err := s.Begin(path)
	require.NoError(t, err)
	assert.Equal(t, newRoot, tx2.Root())

	target, found, err := tx2.Seek(testKey(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.PermanentNodeID(100), target)
}

// Two transactions overwriting the same key both recorded it only as a
// plain write (txrange.Summary.TouchWrite, not TouchUnique), so the root
// server classifies them as a soft conflict, not hard: per spec.md §4.3.3
// a soft conflict still rebases and resolves by replay, with the later
// committer's write winning, rather than faulting either side.
func TestSessionCommitRebasesOnOverlappingWriteToSameKey(t *testing.T) {
	c := newTestCluster(t)
	path := types.PathName("/conflict/path")

	s, err := Open(c.sessionConfig(path))
	require.NoError(t, err)

	base, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, base.Insert(testKey(1), types.PermanentNodeID(1)))
	_, err = base.Commit()
	require.NoError(t, err)

	txA, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, txA.Insert(testKey(1), types.PermanentNodeID(2)))

	txB, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, txB.Insert(testKey(1), types.PermanentNodeID(3)))

	_, err = txA.Commit()
	require.NoError(t, err)

	newRoot, err := txB.Commit()
	require.NoError(t, err, "a plain same-key overwrite is a soft conflict and should rebase, not fault")

	final, err := s.Begin(path)
	require.NoError(t, err)
	assert.Equal(t, newRoot, final.Root())

	target, found, err := final.Seek(testKey(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.PermanentNodeID(3), target, "txB committed last, so its write should win after rebase")
}

func TestSessionCommitRebasesOnNonOverlappingConcurrentWrite(t *testing.T) {
	c := newTestCluster(t)
	path := types.PathName("/rebase/path")

	s, err := Open(c.sessionConfig(path))
	require.NoError(t, err)

	base, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, base.Insert(testKey(1), types.PermanentNodeID(1)))
	_, err = base.Commit()
	require.NoError(t, err)

	txA, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, txA.Insert(testKey(2), types.PermanentNodeID(2)))

	txB, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, txB.Insert(testKey(3), types.PermanentNodeID(3)))

	_, err = txA.Commit()
	require.NoError(t, err)

	newRoot, err := txB.Commit()
	require.NoError(t, err, "disjoint-key writes should rebase and succeed rather than fault")

	final, err := s.Begin(path)
	require.NoError(t, err)
	assert.Equal(t, newRoot, final.Root())

	for i, id := range map[uint64]types.NodeID{1: types.PermanentNodeID(1), 2: types.PermanentNodeID(2), 3: types.PermanentNodeID(3)} {
		target, found, err := final.Seek(testKey(i))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, id, target)
	}
}

// TestSessionReadFailsOverToSurvivingReplica exercises acceptance scenario
// S5: a node written to two block servers is still readable after one of
// them goes down, because clusterSource.ReadNode hands block.Read every
// assigned replica and blockClient.Read fails over via callWithFailover.
func TestSessionReadFailsOverToSurvivingReplica(t *testing.T) {
	c := newTestClusterWithBlockServers(t, 2)
	path := types.PathName("/failover/path")

	s, err := Open(c.sessionConfig(path))
	require.NoError(t, err)

	tx, err := s.Begin(path)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(testKey(1), types.PermanentNodeID(100)))
	_, err = tx.Commit()
	require.NoError(t, err)

	// Take down one of the two replicas that now hold the flushed node.
	require.NoError(t, c.blockLns[0].Close())

	tx2, err := s.Begin(path)
	require.NoError(t, err)
	target, found, err := tx2.Seek(testKey(1))
	require.NoError(t, err, "read should fail over to the surviving replica")
	assert.True(t, found)
	assert.Equal(t, types.PermanentNodeID(100), target)
}

func TestSessionOpenDataFileWriteAndReadBack(t *testing.T) {
	c := newTestCluster(t)
	path := types.PathName("/datafile/path")

	s, err := Open(c.sessionConfig(path))
	require.NoError(t, err)

	tx, err := s.Begin(path)
	require.NoError(t, err)

	df, err := tx.OpenDataFile(testKey(1))
	require.NoError(t, err)
	require.NoError(t, df.SetSize(4))
	df.Position(0)
	require.NoError(t, df.Put([]byte("data")))
	require.NoError(t, tx.BindDataFile(testKey(1), df))

	_, err = tx.Commit()
	require.NoError(t, err)

	tx2, err := s.Begin(path)
	require.NoError(t, err)
	df2, err := tx2.OpenDataFile(testKey(1))
	require.NoError(t, err)
	got, err := df2.Get(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}
