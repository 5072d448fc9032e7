package tree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mckoi/mckoiddb/pkg/types"
)

func TestDataFileSetSizeAndPutGet(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)

	require.NoError(t, df.SetSize(10))
	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	df.Position(0)
	require.NoError(t, df.Put([]byte("hello")))

	df.Position(0)
	got, err := df.Get(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestDataFilePutPastSizeFails(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, df.SetSize(2))

	err := df.Put([]byte("abc"))
	assert.Error(t, err)
}

func TestDataFileGrowsAcrossMultipleLeaves(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)

	n := int64(types.MaxLeafPayload*2 + 100)
	require.NoError(t, df.SetSize(n))
	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, n, size)

	data := bytes.Repeat([]byte{0xAB}, int(n))
	df.Position(0)
	require.NoError(t, df.Put(data))

	df.Position(0)
	got, err := df.Get(n)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDataFileWriteSpanningLeafBoundary(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	n := int64(types.MaxLeafPayload * 2)
	require.NoError(t, df.SetSize(n))

	straddle := bytes.Repeat([]byte{0x11}, 40)
	df.Position(int64(types.MaxLeafPayload - 20))
	require.NoError(t, df.Put(straddle))

	df.Position(int64(types.MaxLeafPayload - 20))
	got, err := df.Get(40)
	require.NoError(t, err)
	assert.Equal(t, straddle, got)
}

func TestDataFileShrinkTruncatesContent(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, df.SetSize(20))
	df.Position(0)
	require.NoError(t, df.Put(bytes.Repeat([]byte{0x1}, 20)))

	require.NoError(t, df.SetSize(5))
	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	df.Position(0)
	got, err := df.Get(5)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x1}, 5), got)
}

func TestDataFileShiftInsertsZeroFilledGap(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, df.SetSize(10))
	df.Position(0)
	require.NoError(t, df.Put([]byte("0123456789")))

	df.Position(5)
	require.NoError(t, df.Shift(3))

	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)

	df.Position(0)
	got, err := df.Get(13)
	require.NoError(t, err)
	assert.Equal(t, []byte("01234\x00\x00\x0056789"), got)
}

func TestDataFileShiftRemovesBytes(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, df.SetSize(10))
	df.Position(0)
	require.NoError(t, df.Put([]byte("0123456789")))

	df.Position(2)
	require.NoError(t, df.Shift(-3)) // removes "234"

	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	df.Position(0)
	got, err := df.Get(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("0156789"), got)
}

// TestDataFileShiftRoundTripPreservesSize exercises acceptance scenario S4:
// on a 4096-byte DataFile filled with 0xAB, position(1024); shift(+128);
// shift(-128) restores size and byte image exactly.
func TestDataFileShiftRoundTripPreservesSize(t *testing.T) {
	tx := newTestTx()
	df := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, df.SetSize(4096))

	filled := bytes.Repeat([]byte{0xAB}, 4096)
	df.Position(0)
	require.NoError(t, df.Put(filled))

	df.Position(1024)
	require.NoError(t, df.Shift(128))

	size, err := df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4224), size)

	df.Position(1024)
	require.NoError(t, df.Shift(-128))

	size, err = df.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	df.Position(0)
	got, err := df.Get(4096)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(filled, got), "byte image should be restored exactly after the shift round trip")
}

func TestDataFileCopyFromByteLevel(t *testing.T) {
	tx := newTestTx()
	src := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, src.SetSize(5))
	src.Position(0)
	require.NoError(t, src.Put([]byte("abcde")))

	dst := OpenDataFile(tx, types.NilNodeID)
	src.Position(0)
	require.NoError(t, dst.CopyFrom(src, 5))

	dst.Position(0)
	got, err := dst.Get(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), got)
}

func TestDataFileReplicateFromPermanentRootSharesByReference(t *testing.T) {
	tx := newTestTx()
	src := OpenDataFile(tx, types.PermanentNodeID(42))
	dst := OpenDataFile(tx, types.NilNodeID)

	require.NoError(t, dst.ReplicateFrom(src))
	assert.Equal(t, types.PermanentNodeID(42), dst.Root())
}

func TestDataFileReplicateFromTemporaryRootFallsBackToByteCopy(t *testing.T) {
	tx := newTestTx()
	src := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, src.SetSize(4))
	src.Position(0)
	require.NoError(t, src.Put([]byte("wxyz")))

	dst := OpenDataFile(tx, types.NilNodeID)
	require.NoError(t, dst.ReplicateFrom(src))

	assert.NotEqual(t, src.Root(), dst.Root())
	dst.Position(0)
	got, err := dst.Get(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("wxyz"), got)
}
