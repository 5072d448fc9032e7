package wire

// Message payloads carried inside a frame's body (spec.md §6.2), encoded
// with hashicorp/go-msgpack/v2. Node ids, keys, and byte payloads use
// their own fixed 16-byte wire form (types.NodeID.Bytes / types.Key.Bytes)
// rather than msgpack, so only the envelope around them needs a codec;
// msgpack was chosen because it's the same codec family raft itself uses
// for log entries, so no new wire-format family is introduced.

// ErrorResponse is the body of an OpError frame, replacing the request's
// normal response whenever the handler fails (spec.md §7's Kind tags
// travel with it so a client can classify the failure without parsing
// message strings).
type ErrorResponse struct {
	Kind    string
	Message string
}

// BlockReadRequest is the body of an OpBlockRead frame.
type BlockReadRequest struct {
	NodeID [16]byte
}

// BlockReadResponse is the body of the reply to OpBlockRead.
type BlockReadResponse struct {
	Found bool
	Data  []byte
}

// BlockWriteRequest is the body of an OpBlockWrite frame.
type BlockWriteRequest struct {
	NodeID [16]byte
	Data   []byte
}

// BlockWriteResponse is the body of the reply to OpBlockWrite.
type BlockWriteResponse struct {
	Conflict bool
}

// BlockDeleteRequest is the body of an OpBlockDelete frame.
type BlockDeleteRequest struct {
	NodeID [16]byte
}

// BlockListLocalResponse is the body of the reply to OpBlockListLocal.
type BlockListLocalResponse struct {
	NodeIDs [][16]byte
}

// ManagerAllocateRequest is the body of an OpManagerAllocate frame.
type ManagerAllocateRequest struct {
	Count int
}

// ManagerAllocateResponse is the body of the reply to OpManagerAllocate.
type ManagerAllocateResponse struct {
	NodeIDs [][16]byte
}

// ManagerResolveRequest is the body of an OpManagerResolve frame.
type ManagerResolveRequest struct {
	NodeID [16]byte
}

// ManagerResolveResponse is the body of the reply to OpManagerResolve.
type ManagerResolveResponse struct {
	Found      bool
	Replicas   []string // block server addresses
	Version    uint64
}

// ManagerAssignRequest is the body of an OpManagerAssign frame.
type ManagerAssignRequest struct {
	NodeID          [16]byte
	BlockServerAddr string
}

// ManagerHeartbeatRequest is the body of an OpManagerHeartbeat frame.
type ManagerHeartbeatRequest struct {
	BlockServerID   string
	BlockServerAddr string
	Status          string
}

// ManagerReleaseRequest is the body of an OpManagerRelease frame (spec.md
// §4.4.6's GC sweep instructing the manager to drop a reference on each
// node id that is no longer reachable from any retained root).
type ManagerReleaseRequest struct {
	NodeIDs [][16]byte
}

// ManagerReleaseResponse is the body of the reply to OpManagerRelease:
// Reclaimed holds exactly the ids whose reference count reached zero and
// were therefore dropped from the directory.
type ManagerReleaseResponse struct {
	Reclaimed [][16]byte
}

// ManagerListAssignedRequest is the body of an OpManagerListAssigned frame.
type ManagerListAssignedRequest struct{}

// ManagerListAssignedResponse is the body of the reply to
// OpManagerListAssigned: every node id currently present in the directory,
// the universe a GC sweep diffs its reachable set against.
type ManagerListAssignedResponse struct {
	NodeIDs [][16]byte
}

// ManagerListLiveBlockServersRequest is the body of an
// OpManagerListLiveBlockServers frame.
type ManagerListLiveBlockServersRequest struct{}

// ManagerListLiveBlockServersResponse is the body of the reply to
// OpManagerListLiveBlockServers: every block server address currently
// marked alive, the pool a session picks fresh-write replicas from.
type ManagerListLiveBlockServersResponse struct {
	Addrs []string
}

// RootBeginRequest is the body of an OpRootBegin frame.
type RootBeginRequest struct {
	Path string
}

// RootBeginResponse is the body of the reply to OpRootBegin.
type RootBeginResponse struct {
	BaseRoot [16]byte
}

// RootCommitRequest is the body of an OpRootCommit frame.
type RootCommitRequest struct {
	Path          string
	BaseRoot      [16]byte
	ProposedRoot  [16]byte
	TouchedBloom  []byte // serialized bloom filter bit set, see pkg/txrange
	TouchedHashes uint8  // number of hash functions used to build the bloom
	UniqueKeys    [][16]byte
}

// RootCommitResponse is the body of the reply to OpRootCommit.
type RootCommitResponse struct {
	Outcome      string // "ok" | "fault" | "merge_needed"
	NewRoot      [16]byte
	FaultKind    string
	CurrentRoot  [16]byte
}

// RootCurrentRequest is the body of an OpRootCurrent frame.
type RootCurrentRequest struct {
	Path string
}

// RootCurrentResponse is the body of the reply to OpRootCurrent.
type RootCurrentResponse struct {
	Root [16]byte
}

// RootRollbackRequest is the body of an OpRootRollback frame.
type RootRollbackRequest struct {
	Path     string
	CommitID uint64
}

// RootRollbackResponse is the body of the reply to OpRootRollback.
type RootRollbackResponse struct {
	Found   bool
	NewRoot [16]byte
}

// RootHistoryRequest is the body of an OpRootHistory frame.
type RootHistoryRequest struct {
	Path string
}

// RootHistoryEntry is one retained commit, oldest first, mirroring
// types.HistoryEntry minus the touched-range summary (which is a
// server-internal bloom filter with no use to a remote caller).
type RootHistoryEntry struct {
	CommitID  uint64
	Root      [16]byte
	Timestamp int64 // unix nanoseconds
}

// RootHistoryResponse is the body of the reply to OpRootHistory.
type RootHistoryResponse struct {
	Entries []RootHistoryEntry
}
