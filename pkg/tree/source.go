package tree

import "github.com/mckoi/mckoiddb/pkg/types"

// NodeSource is the narrow capability a Transaction needs from the rest of
// the cluster: read a permanent node's bytes, allocate fresh permanent ids,
// and write a flushed node's bytes to its replica set. Production code
// supplies pkg/session's cluster-backed implementation; tests supply an
// in-memory fake, matching the "narrow capability set" approach already
// used for types.Node itself.
type NodeSource interface {
	ReadNode(id types.NodeID) (types.Node, error)
	AllocateIDs(count int) ([]types.NodeID, error)
	WriteNode(id types.NodeID, n types.Node) error

	// ListAssignedIDs returns every node id the manager's directory
	// currently holds a replica-set entry for (spec.md §4.4.6): the
	// universe a GC sweep diffs its reachable set against.
	ListAssignedIDs() ([]types.NodeID, error)

	// ReleaseNodes drops one directory reference from each id (spec.md
	// §4.4.6's GC sweep telling the manager a node is no longer reachable
	// from any retained root). It returns the subset whose reference
	// count reached zero and were therefore dropped from the directory,
	// i.e. now eligible for physical deletion at their block servers.
	ReleaseNodes(ids []types.NodeID) ([]types.NodeID, error)
}
