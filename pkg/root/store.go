package root

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/txrange"
	"github.com/mckoi/mckoiddb/pkg/types"
)

var (
	metaBucket    = []byte("meta")
	historyBucket = []byte("history")
	currentKey    = []byte("current_root")
)

// historyRecord is the JSON-serialized form of one history entry, stored
// under its big-endian commit id key (spec.md §6.3: "append each accepted
// commit to a per-path log").
type historyRecord struct {
	Root       [16]byte
	BloomBits  []byte
	HashCount  uint8
	UniqueKeys [][16]byte
	Timestamp  int64
}

// pathStore persists one path's current_root and commit history in a
// single bbolt file. A single bbolt transaction updates both the
// current_root record and the appended history entry together (see
// pkg/root doc.go), which is what gives this the same durability
// guarantee spec.md §6.3 asks the hand-rolled write-new/fsync/rename
// scheme to provide.
type pathStore struct {
	db *bolt.DB
}

func openPathStore(dataDir string, name types.PathName) (*pathStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "create root data dir", err)
	}
	file := filepath.Join(dataDir, sanitizePathName(string(name))+".db")
	db, err := bolt.Open(file, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "open root store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, mckoierr.Wrap(mckoierr.KindFileSystem, "initialize root store buckets", err)
	}
	return &pathStore{db: db}, nil
}

func sanitizePathName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (s *pathStore) Close() error {
	return s.db.Close()
}

// load reads the persisted current_root and the full history ring
// contents back from disk, for warm start after a restart.
func (s *pathStore) load() (currentRoot types.NodeID, history []types.HistoryEntry, err error) {
	txErr := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(metaBucket).Get(currentKey); raw != nil {
			id, err := types.NodeIDFromBytes(raw)
			if err != nil {
				return err
			}
			currentRoot = id
		}
		return tx.Bucket(historyBucket).ForEach(func(k, v []byte) error {
			var rec historyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			root, err := types.NodeIDFromBytes(rec.Root[:])
			if err != nil {
				return err
			}
			uniqueKeys := make([]types.Key, len(rec.UniqueKeys))
			for i, ub := range rec.UniqueKeys {
				k, err := types.KeyFromBytes(ub[:])
				if err != nil {
					return err
				}
				uniqueKeys[i] = k
			}
			history = append(history, types.HistoryEntry{
				CommitID:  binary.BigEndian.Uint64(k),
				Root:      root,
				Touched:   txrange.FromWire(rec.BloomBits, rec.HashCount, uniqueKeys),
				Timestamp: time.Unix(0, rec.Timestamp),
			})
			return nil
		})
	})
	if txErr != nil {
		return types.NodeID{}, nil, mckoierr.Wrap(mckoierr.KindFileSystem, "load root store", txErr)
	}
	return currentRoot, history, nil
}

// appendCommit durably records a newly-accepted commit: the new
// current_root and its history entry, in one bbolt transaction.
func (s *pathStore) appendCommit(commitID uint64, entry types.HistoryEntry) error {
	summary, ok := entry.Touched.(interface {
		Bits() []byte
		HashCount() uint8
		UniqueKeys() []types.Key
	})
	var bits []byte
	var hashCount uint8
	var uniqueKeys []types.Key
	if ok {
		bits = summary.Bits()
		hashCount = summary.HashCount()
		uniqueKeys = summary.UniqueKeys()
	}
	uniqueBytes := make([][16]byte, len(uniqueKeys))
	for i, k := range uniqueKeys {
		uniqueBytes[i] = k.Bytes()
	}
	rec := historyRecord{
		Root:       entry.Root.Bytes(),
		BloomBits:  bits,
		HashCount:  hashCount,
		UniqueKeys: uniqueBytes,
		Timestamp:  entry.Timestamp.UnixNano(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindInternal, "marshal history record", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, commitID)
	rootBytes := entry.Root.Bytes()

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(metaBucket).Put(currentKey, rootBytes[:]); err != nil {
			return err
		}
		return tx.Bucket(historyBucket).Put(key, value)
	})
	if err != nil {
		return mckoierr.Wrap(mckoierr.KindFileSystem, "append commit", err)
	}
	return nil
}
