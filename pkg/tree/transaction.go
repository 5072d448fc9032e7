package tree

import (
	"fmt"

	"github.com/mckoi/mckoiddb/pkg/cache"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/txrange"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// State is a Transaction's lifecycle stage (spec.md §3.4: "open -> mutated
// -> committed | disposed").
type State int

const (
	StateOpen State = iota
	StateMutated
	StateCommitted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateMutated:
		return "mutated"
	case StateCommitted:
		return "committed"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transaction is the client-side handle of spec.md §3.4: the root it was
// opened at, a heap of dirty (temporary-id) nodes, a record of nodes
// already flushed this transaction, and a touched-range summary for
// conflict detection. A Transaction is single-owner (spec.md §4.5): no
// internal locking guards concurrent use from multiple goroutines.
type Transaction struct {
	Path     types.PathName
	BaseRoot types.NodeID

	state State

	source NodeSource
	cache  *cache.NodeCache

	tempIDs types.TemporaryIDGenerator
	dirty   map[types.NodeID]types.Node // temporary id -> node, pre-flush
	flushed map[types.NodeID]types.NodeID // temporary id -> permanent id, post-flush

	root types.NodeID // baseRoot until the first Flush, then the last flushed root
	Touched *txrange.Summary
}

// New opens a transaction over baseRoot (spec.md §4.3.1: the root server
// already performed the atomic current_root read; this just wraps the
// result with client-side state).
func New(path types.PathName, baseRoot types.NodeID, source NodeSource, nodeCache *cache.NodeCache) *Transaction {
	return &Transaction{
		Path:     path,
		BaseRoot: baseRoot,
		state:    StateOpen,
		source:   source,
		cache:    nodeCache,
		dirty:    make(map[types.NodeID]types.Node),
		flushed:  make(map[types.NodeID]types.NodeID),
		root:     baseRoot,
		Touched:  txrange.NewSummary(),
	}
}

// State returns the transaction's current lifecycle stage.
func (tx *Transaction) State() State { return tx.state }

// Root returns the root the transaction was opened at, or the root returned
// by its most recent Flush. Insert/Delete hand their new roots back to the
// caller and do not update it.
func (tx *Transaction) Root() types.NodeID { return tx.root }

// checkLive returns ErrInvalidated once a transaction has been committed or
// disposed (spec.md §3.4: "any further use must fail").
func (tx *Transaction) checkLive() error {
	if tx.state == StateCommitted || tx.state == StateDisposed {
		return mckoierr.ErrInvalidated
	}
	return nil
}

// markMutated transitions open -> mutated on the first write.
func (tx *Transaction) markMutated() {
	if tx.state == StateOpen {
		tx.state = StateMutated
	}
}

// Dispose invalidates the transaction without committing (spec.md §3.4).
// Dirty nodes are simply dropped; nothing was ever visible beyond this
// transaction, so there is nothing to undo at the root server.
func (tx *Transaction) Dispose() {
	tx.state = StateDisposed
	tx.dirty = nil
}

// getNode resolves id to a decoded node: dirty heap first (a temporary id
// can only ever be found there), then the shared node cache (which itself
// coalesces concurrent decode misses through the source).
func (tx *Transaction) getNode(id types.NodeID) (types.Node, error) {
	if id.IsNil() {
		return nil, mckoierr.New(mckoierr.KindInternal, "getNode: nil node id")
	}
	if n, ok := tx.dirty[id]; ok {
		return n, nil
	}
	return tx.cache.GetOrDecode(id, func() (types.Node, int64, error) {
		n, err := tx.source.ReadNode(id)
		if err != nil {
			return nil, 0, err
		}
		return n, DecodedSize(n), nil
	})
}

// putDirty records a heap-local node under its temporary id, marking the
// transaction mutated.
func (tx *Transaction) putDirty(n types.Node) {
	tx.dirty[n.ID()] = n
	tx.markMutated()
}

// newTempID mints the next temporary id for this transaction's heap.
func (tx *Transaction) newTempID() types.NodeID {
	return tx.tempIDs.Next()
}
