package block

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// sentinelName marks a data directory as "currently open"; its presence at
// startup means the previous process did not shut down cleanly (spec.md
// §4.1 "unclean shutdown is detected via a sentinel file").
const sentinelName = "OPEN_SENTINEL"

var blocksBucket = []byte("blocks")

// Store is the durable block server of spec.md §4.1: content-addressed,
// immutable node storage with idempotent writes and SHA-256 tail checksums.
//
// Each bucket file (spec.md §4.1: "fixed-size bucket files... an append-log
// with an in-memory hash-to-offset index rebuilt on startup") is a single
// bbolt database. bbolt already gives us the append-log-plus-index and the
// fsync-before-acknowledgement durability contract natively, and its
// transactional commit protocol means a torn write can never leave a bucket
// file in a state that needs a repair scan — so the only piece Store adds
// on top is the sentinel file for unclean-shutdown detection and the
// content checksum used to detect ImmutableConflict on a rewritten id.
type Store struct {
	dir         string
	buckets     []*bolt.DB
	sentinelFD  *os.File
	uncleanOnOpen bool
}

// Open opens (creating if absent) a block server's data directory, sharding
// node storage across bucketCount bbolt files so concurrent writes to
// different buckets don't serialize on one database's single writer lock.
func Open(dir string, bucketCount int) (*Store, error) {
	if bucketCount < 1 {
		bucketCount = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create block data dir", err)
	}

	sentinelPath := filepath.Join(dir, sentinelName)
	unclean := false
	if _, err := os.Stat(sentinelPath); err == nil {
		unclean = true
	}
	sentinelFD, err := os.OpenFile(sentinelPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create sentinel file", err)
	}

	buckets := make([]*bolt.DB, bucketCount)
	for i := 0; i < bucketCount; i++ {
		path := filepath.Join(dir, fmt.Sprintf("bucket-%04d.db", i))
		db, err := bolt.Open(path, 0o600, nil)
		if err != nil {
			sentinelFD.Close()
			return nil, mckoierr.Wrap(mckoierr.KindFileSystem, fmt.Sprintf("open bucket file %s", path), err)
		}
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(blocksBucket)
			return err
		}); err != nil {
			sentinelFD.Close()
			return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create blocks bucket", err)
		}
		buckets[i] = db
	}

	s := &Store{dir: dir, buckets: buckets, sentinelFD: sentinelFD, uncleanOnOpen: unclean}
	if unclean {
		log.WithComponent("block").Warn().Str("dir", dir).Msg("unclean shutdown detected on previous run")
	}
	s.refreshMetrics()
	return s, nil
}

// UncleanShutdownDetected reports whether Open found a stale sentinel file,
// i.e. the previous process did not call Close.
func (s *Store) UncleanShutdownDetected() bool {
	return s.uncleanOnOpen
}

// Close removes the sentinel file (a clean shutdown needs no repair scan on
// next Open) and closes every bucket file.
func (s *Store) Close() error {
	var firstErr error
	for _, db := range s.buckets {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.sentinelFD.Close()
	if err := os.Remove(filepath.Join(s.dir, sentinelName)); err != nil && firstErr == nil && !os.IsNotExist(err) {
		firstErr = err
	}
	return firstErr
}

func (s *Store) bucketFor(id types.NodeID) *bolt.DB {
	idx := int(id.High^id.Low) % len(s.buckets)
	if idx < 0 {
		idx += len(s.buckets)
	}
	return s.buckets[idx]
}

// encode appends a SHA-256 tail checksum to data (spec.md §4.1 "Checksum
// each stored block (SHA-256 tail)").
func encode(data []byte) []byte {
	sum := sha256.Sum256(data)
	out := make([]byte, 0, len(data)+len(sum))
	out = append(out, data...)
	out = append(out, sum[:]...)
	return out
}

// decode splits stored bytes back into payload and verifies the tail
// checksum, catching on-disk corruption that bbolt's own page checksums
// would not (e.g. a previously truncated torn write from a non-bbolt
// writer, or bit rot within an otherwise valid page).
func decode(stored []byte) ([]byte, bool) {
	if len(stored) < sha256.Size {
		return nil, false
	}
	split := len(stored) - sha256.Size
	payload, tail := stored[:split], stored[split:]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], tail) {
		return nil, false
	}
	return payload, true
}

// Write stores data under id. A permanent id already holding different
// bytes fails with ImmutableConflict (spec.md §4.1); a rewrite of the same
// bytes is accepted idempotently.
func (s *Store) Write(id types.NodeID, data []byte) error {
	key := id.Bytes()
	db := s.bucketFor(id)
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blocksBucket)
		if existing := b.Get(key[:]); existing != nil {
			payload, ok := decode(existing)
			if ok && bytes.Equal(payload, data) {
				return nil // idempotent rewrite
			}
			if id.IsPermanent() {
				return mckoierr.New(mckoierr.KindImmutableConflict,
					fmt.Sprintf("node %s already stored with different payload", id))
			}
		}
		return b.Put(key[:], encode(data))
	})
	switch {
	case err == nil:
		metrics.BlockWritesTotal.WithLabelValues("ok").Inc()
	case mckoierr.Is(err, mckoierr.KindImmutableConflict):
		metrics.BlockWritesTotal.WithLabelValues("conflict").Inc()
	default:
		metrics.BlockWritesTotal.WithLabelValues("error").Inc()
	}
	s.refreshMetrics()
	return err
}

// Read returns the bytes stored under id, or mckoierr.ErrNotFound.
func (s *Store) Read(id types.NodeID) ([]byte, error) {
	key := id.Bytes()
	var out []byte
	err := s.bucketFor(id).View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(blocksBucket).Get(key[:])
		if stored == nil {
			return mckoierr.ErrNotFound
		}
		payload, ok := decode(stored)
		if !ok {
			return mckoierr.New(mckoierr.KindFileSystem, fmt.Sprintf("checksum mismatch for node %s", id))
		}
		out = make([]byte, len(payload))
		copy(out, payload)
		return nil
	})
	switch {
	case err == nil:
		metrics.BlockReadsTotal.WithLabelValues("hit").Inc()
	case mckoierr.Is(err, mckoierr.KindFileSystem):
		metrics.BlockReadsTotal.WithLabelValues("corrupt").Inc()
	default:
		metrics.BlockReadsTotal.WithLabelValues("not_found").Inc()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes id if present. Idempotent: deleting an absent id is not an
// error (spec.md §4.1); the manager, not the block server, decides whether
// a delete is actually safe to issue.
func (s *Store) Delete(id types.NodeID) error {
	key := id.Bytes()
	err := s.bucketFor(id).Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Delete(key[:])
	})
	s.refreshMetrics()
	return err
}

// ListLocal returns every node id held locally, in ascending order
// (spec.md §4.1 "diagnostic; returns ids in ascending order").
func (s *Store) ListLocal() ([]types.NodeID, error) {
	var ids []types.NodeID
	for _, db := range s.buckets {
		err := db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(blocksBucket).ForEach(func(k, _ []byte) error {
				id, err := types.NodeIDFromBytes(k)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids, nil
}

func (s *Store) refreshMetrics() {
	var n float64
	for _, db := range s.buckets {
		db.View(func(tx *bolt.Tx) error {
			n += float64(tx.Bucket(blocksBucket).Stats().KeyN)
			return nil
		})
	}
	metrics.BlockNodesStored.Set(n)
}
