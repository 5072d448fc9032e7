package tree

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// maxFlushConcurrency bounds the number of in-flight WriteNode calls a
// single Flush issues at once (spec.md §4.4.4's "flush may write nodes to
// their replica sets in parallel"), mirroring the bounded worker pool the
// teacher's other background workers build with errgroup.Group.SetLimit.
const maxFlushConcurrency = 16

// Flush writes every dirty node to its replica set and rewrites tx's root
// to a permanent id (spec.md §4.4.4). It proceeds in two phases:
//
//  1. Walk the dirty set in post-order, assigning each node a permanent id
//     from a single batched allocation and rewriting branch entries so a
//     parent always references its children's *final* permanent ids. This
//     must be sequential and complete before any byte is written, since a
//     flushed node's encoded form has to be fully determined up front.
//  2. Write every node's final bytes to its NodeSource concurrently,
//     bounded by maxFlushConcurrency.
//
// Flush is idempotent: calling it again with nothing newly dirty is a
// no-op that just returns root unchanged.
//
// root is the caller's current index-tree root, the same value threaded
// through Insert/Delete/Seek's explicit root parameter: a Transaction has
// no implicit notion of "the" root of its own, since one Transaction's
// dirty heap backs both the key index and every DataFile subtree it
// touched, each with its own independently evolving root.
func (tx *Transaction) Flush(root types.NodeID) (types.NodeID, error) {
	if err := tx.checkLive(); err != nil {
		return types.NilNodeID, err
	}
	if len(tx.dirty) == 0 {
		return root, nil
	}

	order, isIndexLeaf, err := tx.collectFlushOrder(root)
	if err != nil {
		return types.NilNodeID, err
	}
	if len(order) == 0 {
		return root, nil
	}

	ids, err := tx.source.AllocateIDs(len(order))
	if err != nil {
		return types.NilNodeID, err
	}

	final := make(map[types.NodeID]types.Node, len(order))
	for i, tempID := range order {
		n := tx.dirty[tempID]
		permID := ids[i]
		tx.flushed[tempID] = permID
		if isIndexLeaf[tempID] {
			rewritten, err := rewriteIndexLeaf(n.(*types.LeafNode), permID, tx.flushed)
			if err != nil {
				return types.NilNodeID, err
			}
			final[permID] = rewritten
		} else {
			final[permID] = rewriteID(n, permID, tx.flushed)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(maxFlushConcurrency)
	for permID, n := range final {
		permID, n := permID, n
		g.Go(func() error {
			if err := tx.source.WriteNode(permID, n); err != nil {
				return err
			}
			metrics.FlushedNodesTotal.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.NilNodeID, err
	}

	newRoot := root
	if permID, ok := tx.flushed[root]; ok {
		newRoot = permID
	}
	tx.root = newRoot
	tx.dirty = make(map[types.NodeID]types.Node)
	return newRoot, nil
}

// treeMode distinguishes the two interpretations of a dirty LeafNode that
// collectFlushOrder's walk can reach: an index leaf's payload is itself a
// list of (key, target subtree root) records that point into a DataFile
// tree, while a DataFile leaf's payload is opaque bytes with no further
// node references.
type treeMode int

const (
	modeIndex treeMode = iota
	modeData
)

// collectFlushOrder returns, in post-order (children before parents), every
// temporary id reachable from the index tree rooted at root — including,
// for each index leaf, the DataFile subtrees its records point at — plus
// a set marking which of those ids are index leaves (as opposed to DataFile
// leaves or branches), since the two need different rewriting in phase 1.
// Ids that are already permanent (untouched by this transaction, or a
// DataFile root a record pointed at without ever being flushed) are
// skipped; only the dirty subtree needs flushing.
func (tx *Transaction) collectFlushOrder(root types.NodeID) ([]types.NodeID, map[types.NodeID]bool, error) {
	var order []types.NodeID
	visited := make(map[types.NodeID]bool)
	isIndexLeaf := make(map[types.NodeID]bool)

	var visit func(id types.NodeID, mode treeMode) error
	visit = func(id types.NodeID, mode treeMode) error {
		if id.IsNil() || id.IsPermanent() || visited[id] {
			return nil
		}
		visited[id] = true
		n, ok := tx.dirty[id]
		if !ok {
			return nil
		}
		switch v := n.(type) {
		case *types.BranchNode:
			for _, e := range v.Entries {
				if err := visit(e.ChildID, mode); err != nil {
					return err
				}
			}
		case *types.LeafNode:
			if mode == modeIndex {
				records, err := decodeIndexLeaf(v)
				if err != nil {
					return err
				}
				isIndexLeaf[id] = true
				for _, r := range records {
					if err := visit(r.Target, modeData); err != nil {
						return err
					}
				}
			}
		}
		order = append(order, id)
		return nil
	}
	if err := visit(root, modeIndex); err != nil {
		return nil, nil, err
	}
	return order, isIndexLeaf, nil
}

// rewriteIndexLeaf decodes leaf's records, rewrites any Target that has
// since been flushed to its permanent id, and re-encodes under permID.
func rewriteIndexLeaf(leaf *types.LeafNode, permID types.NodeID, flushed map[types.NodeID]types.NodeID) (types.Node, error) {
	records, err := decodeIndexLeaf(leaf)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		if p, ok := flushed[r.Target]; ok {
			records[i].Target = p
		}
	}
	return encodeIndexLeaf(permID, records), nil
}

// rewriteID returns a copy of n with its own id set to permID and, for a
// branch, every child reference that has already been flushed rewritten to
// that child's permanent id.
func rewriteID(n types.Node, permID types.NodeID, flushed map[types.NodeID]types.NodeID) types.Node {
	switch v := n.(type) {
	case *types.LeafNode:
		return v.Clone(permID)
	case *types.BranchNode:
		out := v.Clone(permID)
		for i, e := range out.Entries {
			if p, ok := flushed[e.ChildID]; ok {
				out.Entries[i].ChildID = p
			}
		}
		return out
	default:
		return n
	}
}

// sortedNodeIDs is a small helper used by gc.go to keep released-id
// batches in deterministic order for logging/tests.
func sortedNodeIDs(ids []types.NodeID) []types.NodeID {
	out := make([]types.NodeID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
