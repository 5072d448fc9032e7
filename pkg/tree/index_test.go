package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/cache"
	"github.com/mckoi/mckoiddb/pkg/types"
)

func newTestTx() *Transaction {
	return New("test-path", types.NilNodeID, newFakeSource(), cache.NewNodeCache(1<<20))
}

func key(n uint64) types.Key {
	return types.NewKey(0, 0, n)
}

func TestIndexInsertAndSeek(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error

	for i := uint64(0); i < 10; i++ {
		root, err = tx.Insert(root, key(i), types.PermanentNodeID(100+i))
		require.NoError(t, err)
	}

	for i := uint64(0); i < 10; i++ {
		target, found, err := tx.Seek(root, key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, types.PermanentNodeID(100+i), target)
	}

	_, found, err := tx.Seek(root, key(999))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndexInsertOverwritesExistingKey(t *testing.T) {
	tx := newTestTx()
	root, err := tx.Insert(types.NilNodeID, key(1), types.PermanentNodeID(1))
	require.NoError(t, err)

	root, err = tx.Insert(root, key(1), types.PermanentNodeID(2))
	require.NoError(t, err)

	target, found, err := tx.Seek(root, key(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.PermanentNodeID(2), target)
}

func TestIndexSplitsOnOverflow(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error

	// maxIndexRecords fit in one leaf; one more forces a split.
	for i := uint64(0); i < maxIndexRecords+1; i++ {
		root, err = tx.Insert(root, key(i), types.PermanentNodeID(i))
		require.NoError(t, err)
	}

	n, err := tx.getNode(root)
	require.NoError(t, err)
	branch, ok := n.(*types.BranchNode)
	require.True(t, ok, "root should have split into a branch")
	assert.GreaterOrEqual(t, len(branch.Entries), 2)

	for i := uint64(0); i < maxIndexRecords+1; i++ {
		target, found, err := tx.Seek(root, key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, types.PermanentNodeID(i), target)
	}
}

func TestIndexDelete(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error
	for i := uint64(0); i < 20; i++ {
		root, err = tx.Insert(root, key(i), types.PermanentNodeID(i))
		require.NoError(t, err)
	}

	root, err = tx.Delete(root, key(5))
	require.NoError(t, err)

	_, found, err := tx.Seek(root, key(5))
	require.NoError(t, err)
	assert.False(t, found)

	// Everything else survives.
	for i := uint64(0); i < 20; i++ {
		if i == 5 {
			continue
		}
		target, found, err := tx.Seek(root, key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, types.PermanentNodeID(i), target)
	}
}

func TestIndexDeleteAbsentKeyIsNoop(t *testing.T) {
	tx := newTestTx()
	root, err := tx.Insert(types.NilNodeID, key(1), types.PermanentNodeID(1))
	require.NoError(t, err)

	newRoot, err := tx.Delete(root, key(999))
	require.NoError(t, err)
	assert.NotEqual(t, types.NilNodeID, newRoot)

	target, found, err := tx.Seek(newRoot, key(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.PermanentNodeID(1), target)
}

func TestCursorIteratesInOrder(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error
	order := []uint64{5, 1, 9, 3, 7}
	for _, i := range order {
		root, err = tx.Insert(root, key(i), types.PermanentNodeID(i))
		require.NoError(t, err)
	}

	c, err := tx.SeekCursor(root, types.MinKey)
	require.NoError(t, err)

	var got []uint64
	for {
		k, target, ok := c.Next()
		if !ok {
			break
		}
		assert.Equal(t, types.PermanentNodeID(k.Primary), target)
		got = append(got, k.Primary)
	}
	assert.Equal(t, []uint64{1, 3, 5, 7, 9}, got)
}

func TestCursorSeekStartsAtOrAfterKey(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error
	for _, i := range []uint64{1, 3, 5, 7} {
		root, err = tx.Insert(root, key(i), types.PermanentNodeID(i))
		require.NoError(t, err)
	}

	c, err := tx.SeekCursor(root, key(4))
	require.NoError(t, err)

	k, _, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(5), k.Primary)
}

// TestCursorCrossesLeafBoundary exercises an index with enough records to
// force at least two splits (maxIndexRecords == 128), so a leaf-level
// index root is itself a multi-level branch tree. Next must ascend out of
// each exhausted leaf and descend into the next sibling subtree rather than
// stopping at the first leaf boundary.
func TestCursorCrossesLeafBoundary(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error

	const n = 500
	// Insert out of order so the tree's physical leaf layout doesn't just
	// happen to match insertion order.
	for _, i := range shuffledRange(n) {
		root, err = tx.Insert(root, key(uint64(i)), types.PermanentNodeID(uint64(i)))
		require.NoError(t, err)
	}

	c, err := tx.SeekCursor(root, types.MinKey)
	require.NoError(t, err)

	var got []uint64
	for {
		k, target, ok := c.Next()
		if !ok {
			break
		}
		assert.Equal(t, types.PermanentNodeID(k.Primary), target)
		got = append(got, k.Primary)
	}
	require.NoError(t, c.Err())

	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i)
	}
	assert.Equal(t, want, got)
}

// TestCursorSeekMidIndexCrossesLeafBoundary seeks partway into a
// multi-leaf index and confirms iteration still crosses every remaining
// leaf boundary up to the end.
func TestCursorSeekMidIndexCrossesLeafBoundary(t *testing.T) {
	tx := newTestTx()
	root := types.NilNodeID
	var err error

	const n = 500
	for _, i := range shuffledRange(n) {
		root, err = tx.Insert(root, key(uint64(i)), types.PermanentNodeID(uint64(i)))
		require.NoError(t, err)
	}

	c, err := tx.SeekCursor(root, key(300))
	require.NoError(t, err)

	var got []uint64
	for {
		k, _, ok := c.Next()
		if !ok {
			break
		}
		got = append(got, k.Primary)
	}
	require.NoError(t, c.Err())

	want := make([]uint64, 0, n-300)
	for i := uint64(300); i < n; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, got)
}

// shuffledRange returns [0, n) in a fixed, deterministic non-sorted order.
func shuffledRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	for i := len(out) - 1; i > 0; i-- {
		j := (i * 2654435761) % (i + 1)
		if j < 0 {
			j = -j
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}
