package session

import (
	"sort"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/tree"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// clusterSource is the production tree.NodeSource (and, for GC,
// tree.RootSource): it turns each call into manager/block/root RPCs
// instead of an in-memory fake, the counterpart to pkg/tree's test-only
// fakeSource.
type clusterSource struct {
	mgr               *managerClient
	block             *blockClient
	roots             map[types.PathName]*rootClient
	replicationFactor int
}

func (s *clusterSource) ReadNode(id types.NodeID) (types.Node, error) {
	replicas, _, found, err := s.mgr.Resolve(id)
	if err != nil {
		return nil, err
	}
	if !found || len(replicas) == 0 {
		return nil, mckoierr.Wrap(mckoierr.KindNotFound, "resolve "+id.String(), mckoierr.ErrNotFound)
	}
	data, ok, err := s.block.Read(replicas, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, mckoierr.Wrap(mckoierr.KindNotFound, "read "+id.String(), mckoierr.ErrNotFound)
	}
	return tree.Decode(id, data)
}

func (s *clusterSource) AllocateIDs(count int) ([]types.NodeID, error) {
	return s.mgr.AllocateIDs(count)
}

func (s *clusterSource) WriteNode(id types.NodeID, n types.Node) error {
	data, err := tree.Encode(n)
	if err != nil {
		return err
	}
	live, err := s.mgr.ListLiveBlockServerAddrs()
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return mckoierr.New(mckoierr.KindNetwork, "write "+id.String()+": no live block servers registered")
	}
	replicas := pickReplicas(id, live, s.replicationFactor)
	if err := s.block.Write(replicas, id, data); err != nil {
		return err
	}
	for _, addr := range replicas {
		if err := s.mgr.Assign(id, addr); err != nil {
			return err
		}
	}
	return nil
}

func (s *clusterSource) ListAssignedIDs() ([]types.NodeID, error) {
	return s.mgr.ListAssignedIDs()
}

func (s *clusterSource) ReleaseNodes(ids []types.NodeID) ([]types.NodeID, error) {
	return s.mgr.ReleaseNodes(ids)
}

// RetainedRoots implements tree.RootSource for tree.GCSweeper: every root a
// path's retained history still names, plus its current root (the two
// coincide once a commit lands, but a fresh path with no commits yet has
// a current root of NilNodeID and empty history, which markReachable
// already treats as "nothing to walk").
func (s *clusterSource) RetainedRoots(path types.PathName) ([]types.NodeID, error) {
	rc, ok := s.roots[path]
	if !ok {
		return nil, mckoierr.New(mckoierr.KindConfig, "no root server address configured for path "+string(path))
	}
	current, err := rc.Current(path)
	if err != nil {
		return nil, err
	}
	history, err := rc.History(path)
	if err != nil {
		return nil, err
	}
	roots := make([]types.NodeID, 0, len(history)+1)
	roots = append(roots, current)
	for _, e := range history {
		roots = append(roots, e.Root)
	}
	return roots, nil
}

// pickReplicas deterministically selects up to n addresses from live for
// id, distributing load across live's members rather than always writing
// to the same prefix (live is sorted by the manager, so without this
// every node would land on the same first n addresses).
func pickReplicas(id types.NodeID, live []string, n int) []string {
	if n > len(live) {
		n = len(live)
	}
	sorted := make([]string, len(live))
	copy(sorted, live)
	sort.Strings(sorted)

	start := int(id.Low % uint64(len(sorted)))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[(start+i)%len(sorted)])
	}
	return out
}
