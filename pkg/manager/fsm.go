package manager

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/mckoi/mckoiddb/pkg/types"
)

// parseNodeIDHex parses the 32-character hex form produced by
// types.NodeID.String().
func parseNodeIDHex(s string) (types.NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return types.NodeID{}, fmt.Errorf("invalid node id hex %q", s)
	}
	return types.NodeIDFromBytes(b)
}

// Block server liveness states (spec.md §4.2: "unheard from for more than
// the grace period is marked suspect then offline").
const (
	StatusAlive   = "alive"
	StatusSuspect = "suspect"
	StatusOffline = "offline"
)

// NodeEntry is the directory's per-node-id record (spec.md §4.2: "a
// mapping node_id -> { replica_set: set<block_server_id>, version: u64 }"),
// extended per SPEC_FULL.md §3.7 with a RefCount hint: incremented the
// first time a node is assigned a replica, decremented by a GC sweep's
// release request, and reaching zero drops the entry so the id's replicas
// become eligible for physical reclaim.
type NodeEntry struct {
	ReplicaSet []string
	Version    uint64
	RefCount   uint32
}

// BlockServerEntry is the directory's per-block-server-id record (spec.md
// §4.2: "block_server_id -> { address, status, last_seen }").
type BlockServerEntry struct {
	Address  string
	Status   string
	LastSeen time.Time
}

// Command is one state-changing directory operation, replicated through
// raft's log (grounded on the teacher's fsm.go Command{Op, Data} shape,
// generalized from container-orchestration ops to directory ops).
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opAllocateIDs         = "allocate_ids"
	opAssign              = "assign"
	opRegisterBlockServer = "register_block_server"
	opHeartbeat           = "heartbeat"
	opMarkStatus          = "mark_status"
	opRelease             = "release"
)

// AllocateIDsArgs is Command.Data for opAllocateIDs.
type AllocateIDsArgs struct {
	Count int
}

// AllocateIDsResult is the Apply response for opAllocateIDs: the allocated
// range is [Start, Start+Count).
type AllocateIDsResult struct {
	Start uint64
	Count int
}

// AssignArgs is Command.Data for opAssign.
type AssignArgs struct {
	NodeID          [16]byte
	BlockServerAddr string
}

// RegisterBlockServerArgs is Command.Data for opRegisterBlockServer.
type RegisterBlockServerArgs struct {
	ID      string
	Address string
}

// HeartbeatArgs is Command.Data for opHeartbeat and opMarkStatus.
type HeartbeatArgs struct {
	ID     string
	Status string
}

// ReleaseArgs is Command.Data for opRelease.
type ReleaseArgs struct {
	NodeIDs [][16]byte
}

// ReleaseResult is the Apply response for opRelease: the ids whose
// reference count reached zero and were dropped from the directory.
type ReleaseResult struct {
	Reclaimed [][16]byte
}

// DirectoryFSM is the raft finite state machine backing the manager's
// directory (spec.md §4.2). Grounded on the teacher's WarrenFSM: same
// Apply/Snapshot/Restore shape, generalized from CRUD-over-BoltDB cluster
// objects to the node-id/block-server directory maps spec.md defines.
// Unlike the teacher's FSM, DirectoryFSM holds state purely in memory:
// raft's own log store and snapshot store already provide the durability
// spec.md §6.3 asks for, so there's no second persistence layer to keep in
// sync.
type DirectoryFSM struct {
	mu           sync.RWMutex
	allocated    uint64
	nodes        map[types.NodeID]NodeEntry
	blockServers map[string]BlockServerEntry
}

// NewDirectoryFSM creates an empty directory FSM.
func NewDirectoryFSM() *DirectoryFSM {
	return &DirectoryFSM{
		nodes:        make(map[types.NodeID]NodeEntry),
		blockServers: make(map[string]BlockServerEntry),
	}
}

// Apply applies one committed raft log entry.
func (f *DirectoryFSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAllocateIDs:
		var args AllocateIDsArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		start := f.allocated
		f.allocated += uint64(args.Count)
		return AllocateIDsResult{Start: start, Count: args.Count}

	case opAssign:
		var args AssignArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		id, err := types.NodeIDFromBytes(args.NodeID[:])
		if err != nil {
			return err
		}
		entry := f.nodes[id]
		if !containsString(entry.ReplicaSet, args.BlockServerAddr) {
			if len(entry.ReplicaSet) == 0 {
				entry.RefCount++
			}
			entry.ReplicaSet = append(entry.ReplicaSet, args.BlockServerAddr)
			entry.Version++
		}
		f.nodes[id] = entry
		return nil

	case opRelease:
		var args ReleaseArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		var reclaimed [][16]byte
		for _, b := range args.NodeIDs {
			id, err := types.NodeIDFromBytes(b[:])
			if err != nil {
				continue
			}
			entry, ok := f.nodes[id]
			if !ok {
				continue
			}
			if entry.RefCount > 0 {
				entry.RefCount--
			}
			if entry.RefCount == 0 {
				delete(f.nodes, id)
				reclaimed = append(reclaimed, b)
			} else {
				f.nodes[id] = entry
			}
		}
		return ReleaseResult{Reclaimed: reclaimed}

	case opRegisterBlockServer:
		var args RegisterBlockServerArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		f.blockServers[args.ID] = BlockServerEntry{
			Address:  args.Address,
			Status:   StatusAlive,
			LastSeen: time.Now(),
		}
		return nil

	case opHeartbeat:
		var args HeartbeatArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		entry, ok := f.blockServers[args.ID]
		if !ok {
			return fmt.Errorf("heartbeat from unregistered block server %q", args.ID)
		}
		entry.Status = StatusAlive
		entry.LastSeen = time.Now()
		f.blockServers[args.ID] = entry
		return nil

	case opMarkStatus:
		var args HeartbeatArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		entry, ok := f.blockServers[args.ID]
		if !ok {
			return nil // already gone; nothing to mark
		}
		entry.Status = args.Status
		f.blockServers[args.ID] = entry
		return nil

	default:
		return fmt.Errorf("unknown directory command: %s", cmd.Op)
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// directorySnapshot is the JSON-serializable form persisted by raft's
// snapshot store (spec.md §6.3's "periodic snapshot").
type directorySnapshot struct {
	Allocated    uint64
	Nodes        map[string]NodeEntry // keyed by NodeID.String()
	BlockServers map[string]BlockServerEntry
}

// Snapshot captures the directory's current state.
func (f *DirectoryFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := directorySnapshot{
		Allocated:    f.allocated,
		Nodes:        make(map[string]NodeEntry, len(f.nodes)),
		BlockServers: make(map[string]BlockServerEntry, len(f.blockServers)),
	}
	for id, entry := range f.nodes {
		snap.Nodes[id.String()] = entry
	}
	for id, entry := range f.blockServers {
		snap.BlockServers[id] = entry
	}
	return &directorySnapshotSink{snap: snap}, nil
}

// Restore replaces the directory's state from a snapshot.
func (f *DirectoryFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap directorySnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode directory snapshot: %w", err)
	}

	nodes := make(map[types.NodeID]NodeEntry, len(snap.Nodes))
	for s, entry := range snap.Nodes {
		id, err := parseNodeIDHex(s)
		if err != nil {
			return err
		}
		nodes[id] = entry
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocated = snap.Allocated
	f.nodes = nodes
	f.blockServers = snap.BlockServers
	return nil
}

type directorySnapshotSink struct {
	snap directorySnapshot
}

func (s *directorySnapshotSink) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.snap); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *directorySnapshotSink) Release() {}

// listBlockServers returns every registered block server id, sorted, for
// diagnostics (the CLI's show-roots-adjacent tooling; spec.md names no
// specific command for this but the manager's own admin surface needs one).
func (f *DirectoryFSM) listBlockServers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.blockServers))
	for id := range f.blockServers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// listLiveBlockServerAddrs returns the addresses of every block server
// currently marked alive, sorted. A session picking replicas for a fresh
// write draws from exactly this set, never from a suspect or offline
// entry (spec.md §4.2's liveness states).
func (f *DirectoryFSM) listLiveBlockServerAddrs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	addrs := make([]string, 0, len(f.blockServers))
	for _, entry := range f.blockServers {
		if entry.Status == StatusAlive {
			addrs = append(addrs, entry.Address)
		}
	}
	sort.Strings(addrs)
	return addrs
}

// listAssignedIDs returns every node id currently present in the
// directory, sorted (spec.md §4.4.6: the universe a GC sweep diffs its
// reachable set against to find what to release).
func (f *DirectoryFSM) listAssignedIDs() []types.NodeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]types.NodeID, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
