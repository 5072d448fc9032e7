package manager

import (
	"net"

	"github.com/mckoi/mckoiddb/pkg/log"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// Server exposes a Manager over the wire protocol (spec.md §6.2), handling
// OpManagerAllocate/Resolve/Assign/Heartbeat frames. Grounded on
// pkg/block.Server's accept-loop shape.
type Server struct {
	mgr    *Manager
	secret []byte
}

// NewServer wraps mgr for network access.
func NewServer(mgr *Manager, secret []byte) *Server {
	return &Server{mgr: mgr, secret: secret}
}

// Serve accepts connections on ln until it returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	logger := log.WithComponent("manager")
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
	case wire.OpManagerAllocate:
		return s.handleAllocate(body)
	case wire.OpManagerResolve:
		return s.handleResolve(body)
	case wire.OpManagerAssign:
		return s.handleAssign(body)
	case wire.OpManagerHeartbeat:
		return s.handleHeartbeat(body)
	case wire.OpManagerRelease:
		return s.handleRelease(body)
	case wire.OpManagerListAssigned:
		return s.handleListAssigned(body)
	case wire.OpManagerListLiveBlockServers:
		return s.handleListLiveBlockServers(body)
	default:
		return errorResponse(mckoierr.New(mckoierr.KindInternal, "unsupported opcode for manager server"))
	}
}

func (s *Server) handleAllocate(body []byte) (wire.Opcode, []byte, error) {
	var req wire.ManagerAllocateRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	ids, err := s.mgr.AllocateIDs(req.Count)
	if err != nil {
		return errorResponse(err)
	}
	out := make([][16]byte, len(ids))
	for i, id := range ids {
		out[i] = id.Bytes()
	}
	resp, err := wire.Encode(wire.ManagerAllocateResponse{NodeIDs: out})
	return wire.OpManagerAllocate, resp, err
}

func (s *Server) handleResolve(body []byte) (wire.Opcode, []byte, error) {
	var req wire.ManagerResolveRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	id, err := types.NodeIDFromBytes(req.NodeID[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
	}
	replicas, version, found := s.mgr.Resolve(id)
	resp, err := wire.Encode(wire.ManagerResolveResponse{Found: found, Replicas: replicas, Version: version})
	return wire.OpManagerResolve, resp, err
}

func (s *Server) handleAssign(body []byte) (wire.Opcode, []byte, error) {
	var req wire.ManagerAssignRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	id, err := types.NodeIDFromBytes(req.NodeID[:])
	if err != nil {
		return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
	}
	if err := s.mgr.Assign(id, req.BlockServerAddr); err != nil {
		return errorResponse(err)
	}
	return wire.OpManagerAssign, nil, nil
}

func (s *Server) handleHeartbeat(body []byte) (wire.Opcode, []byte, error) {
	var req wire.ManagerHeartbeatRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	// RegisterBlockServer is idempotent and always marks the entry alive
	// with a fresh last_seen, so it doubles as the heartbeat path whether
	// or not this block server id has been seen before.
	if err := s.mgr.RegisterBlockServer(req.BlockServerID, req.BlockServerAddr); err != nil {
		return errorResponse(err)
	}
	return wire.OpManagerHeartbeat, nil, nil
}

func (s *Server) handleRelease(body []byte) (wire.Opcode, []byte, error) {
	var req wire.ManagerReleaseRequest
	if err := wire.Decode(body, &req); err != nil {
		return errorResponse(err)
	}
	ids := make([]types.NodeID, len(req.NodeIDs))
	for i, b := range req.NodeIDs {
		id, err := types.NodeIDFromBytes(b[:])
		if err != nil {
			return errorResponse(mckoierr.Wrap(mckoierr.KindInternal, "decode node id", err))
		}
		ids[i] = id
	}
	reclaimed, err := s.mgr.Release(ids)
	if err != nil {
		return errorResponse(err)
	}
	out := make([][16]byte, len(reclaimed))
	for i, id := range reclaimed {
		out[i] = id.Bytes()
	}
	resp, err := wire.Encode(wire.ManagerReleaseResponse{Reclaimed: out})
	return wire.OpManagerRelease, resp, err
}

func (s *Server) handleListAssigned(body []byte) (wire.Opcode, []byte, error) {
	ids := s.mgr.ListAssignedIDs()
	out := make([][16]byte, len(ids))
	for i, id := range ids {
		out[i] = id.Bytes()
	}
	resp, err := wire.Encode(wire.ManagerListAssignedResponse{NodeIDs: out})
	return wire.OpManagerListAssigned, resp, err
}

func (s *Server) handleListLiveBlockServers(body []byte) (wire.Opcode, []byte, error) {
	addrs := s.mgr.ListLiveBlockServerAddrs()
	resp, err := wire.Encode(wire.ManagerListLiveBlockServersResponse{Addrs: addrs})
	return wire.OpManagerListLiveBlockServers, resp, err
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
