package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/txrange"
	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// rootClient issues RS_BEGIN/RS_COMMIT/RS_ROOT/RS_ROLLBACK/RS_HISTORY
// against the single root server that owns one path (spec.md §4.3: "one
// root server owns a path", so there is no failover candidate list here —
// a root server going unreachable surfaces directly as a NetworkError).
type rootClient struct {
	addr    string
	secret  []byte
	timeout time.Duration
}

func (c *rootClient) call(op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
	op, body, err := callOnce(c.addr, c.secret, c.timeout, op, body)
	if err != nil {
		return 0, nil, err
	}
	if op == wire.OpError {
		var errResp wire.ErrorResponse
		if decErr := wire.Decode(body, &errResp); decErr != nil {
			return 0, nil, decErr
		}
		return 0, nil, &mckoierr.Error{Kind: mckoierr.Kind(errResp.Kind), Message: errResp.Message}
	}
	return op, body, nil
}

func (c *rootClient) Begin(path types.PathName) (types.NodeID, error) {
	body, err := wire.Encode(wire.RootBeginRequest{Path: string(path)})
	if err != nil {
		return types.NodeID{}, err
	}
	_, respBody, err := c.call(wire.OpRootBegin, body)
	if err != nil {
		return types.NodeID{}, err
	}
	var resp wire.RootBeginResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return types.NodeID{}, err
	}
	return types.NodeIDFromBytes(resp.BaseRoot[:])
}

func (c *rootClient) Current(path types.PathName) (types.NodeID, error) {
	body, err := wire.Encode(wire.RootCurrentRequest{Path: string(path)})
	if err != nil {
		return types.NodeID{}, err
	}
	_, respBody, err := c.call(wire.OpRootCurrent, body)
	if err != nil {
		return types.NodeID{}, err
	}
	var resp wire.RootCurrentResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return types.NodeID{}, err
	}
	return types.NodeIDFromBytes(resp.Root[:])
}

// commitOutcome mirrors root.Outcome without importing package root (a
// session talks to the root server only over the wire, never in-process).
type commitOutcome struct {
	Outcome     string // "ok" | "fault" | "merge_needed"
	NewRoot     types.NodeID
	FaultKind   string
	CurrentRoot types.NodeID
}

func (c *rootClient) Commit(path types.PathName, baseRoot, proposedRoot types.NodeID, touched *txrange.Summary) (commitOutcome, error) {
	uniqueWire := make([][16]byte, 0, len(touched.UniqueKeys()))
	for _, k := range touched.UniqueKeys() {
		uniqueWire = append(uniqueWire, k.Bytes())
	}
	body, err := wire.Encode(wire.RootCommitRequest{
		Path:          string(path),
		BaseRoot:      baseRoot.Bytes(),
		ProposedRoot:  proposedRoot.Bytes(),
		TouchedBloom:  touched.Bits(),
		TouchedHashes: touched.HashCount(),
		UniqueKeys:    uniqueWire,
	})
	if err != nil {
		return commitOutcome{}, err
	}
	_, respBody, err := c.call(wire.OpRootCommit, body)
	if err != nil {
		return commitOutcome{}, err
	}
	var resp wire.RootCommitResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return commitOutcome{}, err
	}
	newRoot, err := types.NodeIDFromBytes(resp.NewRoot[:])
	if err != nil {
		return commitOutcome{}, err
	}
	currentRoot, err := types.NodeIDFromBytes(resp.CurrentRoot[:])
	if err != nil {
		return commitOutcome{}, err
	}
	return commitOutcome{
		Outcome:     resp.Outcome,
		NewRoot:     newRoot,
		FaultKind:   resp.FaultKind,
		CurrentRoot: currentRoot,
	}, nil
}

func (c *rootClient) Rollback(path types.PathName, commitID uint64) (types.NodeID, bool, error) {
	body, err := wire.Encode(wire.RootRollbackRequest{Path: string(path), CommitID: commitID})
	if err != nil {
		return types.NodeID{}, false, err
	}
	_, respBody, err := c.call(wire.OpRootRollback, body)
	if err != nil {
		return types.NodeID{}, false, err
	}
	var resp wire.RootRollbackResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return types.NodeID{}, false, err
	}
	newRoot, err := types.NodeIDFromBytes(resp.NewRoot[:])
	return newRoot, resp.Found, err
}

// HistoryEntry is a retained root returned by History, the wire-decoded
// form of types.HistoryEntry (minus its server-internal bloom summary).
type HistoryEntry struct {
	CommitID uint64
	Root     types.NodeID
}

func (c *rootClient) History(path types.PathName) ([]HistoryEntry, error) {
	body, err := wire.Encode(wire.RootHistoryRequest{Path: string(path)})
	if err != nil {
		return nil, err
	}
	_, respBody, err := c.call(wire.OpRootHistory, body)
	if err != nil {
		return nil, err
	}
	var resp wire.RootHistoryResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, len(resp.Entries))
	for i, e := range resp.Entries {
		root, err := types.NodeIDFromBytes(e.Root[:])
		if err != nil {
			return nil, err
		}
		entries[i] = HistoryEntry{CommitID: e.CommitID, Root: root}
	}
	return entries, nil
}
