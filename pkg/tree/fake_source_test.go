package tree

import (
	"sync"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// fakeSource is an in-memory NodeSource standing in for a real
// pkg/session-backed cluster, mirroring the "narrow capability" fakes the
// rest of this codebase builds for its own dependency interfaces (e.g.
// pkg/cache's tests supplying a bare decode func).
type fakeSource struct {
	mu       sync.Mutex
	next     uint64
	nodes    map[types.NodeID][]byte
	refCount map[types.NodeID]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		nodes:    make(map[types.NodeID][]byte),
		refCount: make(map[types.NodeID]int),
	}
}

func (s *fakeSource) ReadNode(id types.NodeID) (types.Node, error) {
	s.mu.Lock()
	data, ok := s.nodes[id]
	s.mu.Unlock()
	if !ok {
		return nil, mckoierr.ErrNotFound
	}
	return Decode(id, data)
}

func (s *fakeSource) AllocateIDs(count int) ([]types.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.NodeID, count)
	for i := 0; i < count; i++ {
		s.next++
		ids[i] = types.PermanentNodeID(s.next)
	}
	return ids, nil
}

func (s *fakeSource) WriteNode(id types.NodeID, n types.Node) error {
	data, err := Encode(n)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.nodes[id] = data
	if _, ok := s.refCount[id]; !ok {
		s.refCount[id] = 1
	}
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) ListAssignedIDs() ([]types.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.NodeID, 0, len(s.refCount))
	for id, rc := range s.refCount {
		if rc > 0 {
			ids = append(ids, id)
		}
	}
	return sortedNodeIDs(ids), nil
}

func (s *fakeSource) ReleaseNodes(ids []types.NodeID) ([]types.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reclaimed []types.NodeID
	for _, id := range ids {
		if s.refCount[id] > 0 {
			s.refCount[id]--
		}
		if s.refCount[id] == 0 {
			delete(s.refCount, id)
			delete(s.nodes, id)
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, nil
}

// fakeRoots is a RootSource stub returning a fixed set of retained roots.
type fakeRoots struct {
	roots []types.NodeID
}

func (r *fakeRoots) RetainedRoots(types.PathName) ([]types.NodeID, error) {
	return r.roots, nil
}
