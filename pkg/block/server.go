package block

import (
	"net"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// Server exposes a Store over the wire protocol of spec.md §6.2, handling
// OpBlockRead/Write/Delete/ListLocal frames.
type Server struct {
	store  *Store
	secret []byte
}

// NewServer wraps store for network access, authenticating every frame with
// secret (the cluster's shared network_password, spec.md §6.2).
func NewServer(store *Store, secret []byte) *Server {
	return &Server{store: store, secret: secret}
}

// Serve accepts connections on ln until it returns a non-nil error (e.g.
// the listener is closed), handling each connection in its own goroutine —
// the teacher's manager/raft transport uses the same accept-loop shape.
func (s *Server) Serve(ln net.Listener) error {
	logger := log.WithComponent("block")
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
	case wire.OpBlockRead:
		return s.handleRead(body)
	case wire.OpBlockWrite:
		return s.handleWrite(body)
	case wire.OpBlockDelete:
		return s.handleDelete(body)
	case wire.OpBlockListLocal:
		return s.handleListLocal()
	default:
		return errorResponse(mckoierr.New(mckoierr.KindInternal, "unsupported opcode for block server"))
	}
}

func (s *Server) handleRead(body []byte) (wire.Opcode, []byte, error) {
	var req wire.BlockReadRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	id, err := types.NodeIDFromBytes(req.NodeID[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
	}
	data, err := s.store.Read(id)
	if mckoierr.Is(err, mckoierr.KindNotFound) {
		resp, encErr := wire.Encode(wire.BlockReadResponse{Found: false})
		return wire.OpBlockRead, resp, encErr
	}
	if err != nil {
		return errorResponse(err)
	}
	resp, err := wire.Encode(wire.BlockReadResponse{Found: true, Data: data})
	return wire.OpBlockRead, resp, err
}

func (s *Server) handleWrite(body []byte) (wire.Opcode, []byte, error) {
	var req wire.BlockWriteRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	id, err := types.NodeIDFromBytes(req.NodeID[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
	}
	err = s.store.Write(id, req.Data)
	if mckoierr.Is(err, mckoierr.KindImmutableConflict) {
		resp, encErr := wire.Encode(wire.BlockWriteResponse{Conflict: true})
		return wire.OpBlockWrite, resp, encErr
	}
	if err != nil {
		return errorResponse(err)
	}
	resp, err := wire.Encode(wire.BlockWriteResponse{Conflict: false})
	return wire.OpBlockWrite, resp, err
}

func (s *Server) handleDelete(body []byte) (wire.Opcode, []byte, error) {
	var req wire.BlockDeleteRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	id, err := types.NodeIDFromBytes(req.NodeID[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
	}
	if err := s.store.Delete(id); err != nil {
		return errorResponse(err)
	}
	return wire.OpBlockDelete, nil, nil
}

func (s *Server) handleListLocal() (wire.Opcode, []byte, error) {
	ids, err := s.store.ListLocal()
	if err != nil {
		return errorResponse(err)
	}
	out := make([][16]byte, len(ids))
	for i, id := range ids {
		out[i] = id.Bytes()
	}
	resp, err := wire.Encode(wire.BlockListLocalResponse{NodeIDs: out})
	return wire.OpBlockListLocal, resp, err
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
