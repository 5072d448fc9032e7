package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreWriteThenRead(t *testing.T) {
	s := openTestStore(t)
	id := types.PermanentNodeID(1)

	require.NoError(t, s.Write(id, []byte("hello")))
	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestStoreReadMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Read(types.PermanentNodeID(42))
	assert.True(t, mckoierr.Is(err, mckoierr.KindNotFound))
}

func TestStoreWriteIdempotentSamePayload(t *testing.T) {
	s := openTestStore(t)
	id := types.PermanentNodeID(2)
	require.NoError(t, s.Write(id, []byte("x")))
	require.NoError(t, s.Write(id, []byte("x")))
}

func TestStoreWriteConflictingPayloadFails(t *testing.T) {
	s := openTestStore(t)
	id := types.PermanentNodeID(3)
	require.NoError(t, s.Write(id, []byte("first")))
	err := s.Write(id, []byte("second"))
	assert.True(t, mckoierr.Is(err, mckoierr.KindImmutableConflict))
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	id := types.PermanentNodeID(4)
	require.NoError(t, s.Write(id, []byte("data")))
	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete(id)) // second delete is a no-op, not an error

	_, err := s.Read(id)
	assert.True(t, mckoierr.Is(err, mckoierr.KindNotFound))
}

// TestStoreReadChecksumMismatchIsFileSystemError flips a payload byte of a
// stored record directly (bypassing Write), so the stored checksum tail no
// longer matches, and confirms Read reports it as KindFileSystem, distinct
// from a missing node.
func TestStoreReadChecksumMismatchIsFileSystemError(t *testing.T) {
	s := openTestStore(t)
	id := types.PermanentNodeID(5)
	require.NoError(t, s.Write(id, []byte("hello")))

	key := id.Bytes()
	db := s.bucketFor(id)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		stored := b.Get(key[:])
		corrupted := append([]byte(nil), stored...)
		corrupted[0] ^= 0xFF // flip a payload byte without touching the tail
		return b.Put(key[:], corrupted)
	}))

	_, err := s.Read(id)
	assert.True(t, mckoierr.Is(err, mckoierr.KindFileSystem))
	assert.False(t, mckoierr.Is(err, mckoierr.KindNotFound))
}

func TestStoreListLocalAscending(t *testing.T) {
	s := openTestStore(t)
	ids := []types.NodeID{
		types.PermanentNodeID(30),
		types.PermanentNodeID(10),
		types.PermanentNodeID(20),
	}
	for _, id := range ids {
		require.NoError(t, s.Write(id, []byte("v")))
	}

	got, err := s.ListLocal()
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Compare(got[i]) < 0)
	}
}

func TestStoreDetectsUncleanShutdown(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, 2)
	require.NoError(t, err)
	assert.False(t, s1.UncleanShutdownDetected())
	// Simulate a crash: close bucket files directly without removing the
	// sentinel (s1.Close would remove it).
	for _, db := range s1.buckets {
		db.Close()
	}

	s2, err := Open(dir, 2)
	require.NoError(t, err)
	defer s2.Close()
	assert.True(t, s2.UncleanShutdownDetected())
}

func TestStoreCleanShutdownClearsSentinel(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, 2)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir, 2)
	require.NoError(t, err)
	defer s2.Close()
	assert.False(t, s2.UncleanShutdownDetected())
}
