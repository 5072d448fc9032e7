package root

import (
	"net"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/txrange"
	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// Server exposes an Engine over the wire protocol (spec.md §6.2), handling
// RS_BEGIN/RS_COMMIT/RS_ROOT/rollback frames. Grounded on pkg/block.Server
// and pkg/manager.Server's accept-loop-per-connection shape.
type Server struct {
	engine *Engine
	secret []byte
}

// NewServer wraps engine for network access.
func NewServer(engine *Engine, secret []byte) *Server {
	return &Server{engine: engine, secret: secret}
}

// Serve accepts connections on ln until it returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	logger := log.WithComponent("root")
	for {
		nc, err := ln.Accept()
		if err != nil {
			return mckoierr.Wrap(mckoierr.KindNetwork, "accept", err)
		}
		go func() {
			if err := wire.Serve(nc, s.secret, s.handle); err != nil {
				logger.Debug().Err(err).Msg("connection closed")
			}
		}()
	}
}

func (s *Server) handle(op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
	switch op {
	case wire.OpRootBegin:
		return s.handleBegin(body)
	case wire.OpRootCommit:
		return s.handleCommit(body)
	case wire.OpRootCurrent:
		return s.handleCurrent(body)
	case wire.OpRootRollback:
		return s.handleRollback(body)
	case wire.OpRootHistory:
		return s.handleHistory(body)
	default:
		return errorResponse(mckoierr.New(mckoierr.KindInternal, "unsupported opcode for root server"))
	}
}

func (s *Server) handleBegin(body []byte) (wire.Opcode, []byte, error) {
	var req wire.RootBeginRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	root, err := s.engine.BeginTransaction(types.PathName(req.Path))
	if err != nil {
		return errorResponse(err)
	}
	resp, err := wire.Encode(wire.RootBeginResponse{BaseRoot: root.Bytes()})
	return wire.OpRootBegin, resp, err
}

func (s *Server) handleCurrent(body []byte) (wire.Opcode, []byte, error) {
	var req wire.RootCurrentRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	root, err := s.engine.Current(types.PathName(req.Path))
	if err != nil {
		return errorResponse(err)
	}
	resp, err := wire.Encode(wire.RootCurrentResponse{Root: root.Bytes()})
	return wire.OpRootCurrent, resp, err
}

func (s *Server) handleCommit(body []byte) (wire.Opcode, []byte, error) {
	var req wire.RootCommitRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	baseRoot, err := types.NodeIDFromBytes(req.BaseRoot[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode base root", err))
	}
	proposedRoot, err := types.NodeIDFromBytes(req.ProposedRoot[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode proposed root", err))
	}
	uniqueKeys := make([]types.Key, len(req.UniqueKeys))
	for i, b := range req.UniqueKeys {
		k, err := types.KeyFromBytes(b[:])
		if err != nil {
			return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode unique key", err))
		}
		uniqueKeys[i] = k
	}
	touched := txrange.FromWire(req.TouchedBloom, req.TouchedHashes, uniqueKeys)

	result, err := s.engine.Commit(types.PathName(req.Path), baseRoot, proposedRoot, touched)
	if err != nil {
		return errorResponse(err)
	}

	wireResp := wire.RootCommitResponse{CurrentRoot: result.CurrentRoot.Bytes()}
	switch result.Outcome {
	case OutcomeOk:
		wireResp.Outcome = "ok"
		wireResp.NewRoot = result.NewRoot.Bytes()
	case OutcomeFault:
		wireResp.Outcome = "fault"
		wireResp.FaultKind = string(result.FaultKind)
	case OutcomeMergeNeeded:
		wireResp.Outcome = "merge_needed"
		wireResp.FaultKind = string(result.FaultKind)
	}
	resp, err := wire.Encode(wireResp)
	return wire.OpRootCommit, resp, err
}

func (s *Server) handleRollback(body []byte) (wire.Opcode, []byte, error) {
	var req wire.RootRollbackRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	newRoot, found, err := s.engine.Rollback(types.PathName(req.Path), req.CommitID)
	if err != nil {
		return errorResponse(err)
	}
	resp, err := wire.Encode(wire.RootRollbackResponse{Found: found, NewRoot: newRoot.Bytes()})
	return wire.OpRootRollback, resp, err
}

func (s *Server) handleHistory(body []byte) (wire.Opcode, []byte, error) {
	var req wire.RootHistoryRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	entries, err := s.engine.History(types.PathName(req.Path))
	if err != nil {
		return errorResponse(err)
	}
	wireEntries := make([]wire.RootHistoryEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = wire.RootHistoryEntry{
			CommitID:  e.CommitID,
			Root:      e.Root.Bytes(),
			Timestamp: e.Timestamp.UnixNano(),
		}
	}
	resp, err := wire.Encode(wire.RootHistoryResponse{Entries: wireEntries})
	return wire.OpRootHistory, resp, err
}

func errorResponse(err error) (wire.Opcode, []byte, error) {
	body, encErr := wire.Encode(wire.ErrorResponse{
		Kind:    string(mckoierr.KindOf(err)),
		Message: err.Error(),
	})
	if encErr != nil {
		return 0, nil, encErr
	}
	return wire.OpError, body, nil
}
