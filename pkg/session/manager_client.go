package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// managerClient is the session's view of the manager's directory (spec.md
// §4.2), issued over wire.Conn against every configured manager address
// with failover (§4.2 "Multi-manager... clients retry on a stale
// version" generalizes directly to "retry the next address on any
// failure").
type managerClient struct {
	addrs   []string
	secret  []byte
	timeout time.Duration
}

func (c *managerClient) call(rpcName string, op wire.Opcode, body []byte) (wire.Opcode, []byte, error) {
	return callWithFailover(c.addrs, c.secret, c.timeout, rpcName, op, body)
}

func (c *managerClient) AllocateIDs(count int) ([]types.NodeID, error) {
	body, err := wire.Encode(wire.ManagerAllocateRequest{Count: count})
	if err != nil {
		return nil, err
	}
	_, respBody, err := c.call("manager_allocate", wire.OpManagerAllocate, body)
	if err != nil {
		return nil, err
	}
	var resp wire.ManagerAllocateResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, err
	}
	ids := make([]types.NodeID, len(resp.NodeIDs))
	for i, b := range resp.NodeIDs {
		id, err := types.NodeIDFromBytes(b[:])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (c *managerClient) Resolve(id types.NodeID) (replicas []string, version uint64, found bool, err error) {
	body, err := wire.Encode(wire.ManagerResolveRequest{NodeID: id.Bytes()})
	if err != nil {
		return nil, 0, false, err
	}
	_, respBody, err := c.call("manager_resolve", wire.OpManagerResolve, body)
	if err != nil {
		return nil, 0, false, err
	}
	var resp wire.ManagerResolveResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, 0, false, err
	}
	return resp.Replicas, resp.Version, resp.Found, nil
}

func (c *managerClient) Assign(id types.NodeID, blockServerAddr string) error {
	body, err := wire.Encode(wire.ManagerAssignRequest{NodeID: id.Bytes(), BlockServerAddr: blockServerAddr})
	if err != nil {
		return err
	}
	_, _, err = c.call("manager_assign", wire.OpManagerAssign, body)
	return err
}

func (c *managerClient) ListAssignedIDs() ([]types.NodeID, error) {
	_, respBody, err := c.call("manager_list_assigned", wire.OpManagerListAssigned, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.ManagerListAssignedResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, err
	}
	ids := make([]types.NodeID, len(resp.NodeIDs))
	for i, b := range resp.NodeIDs {
		id, err := types.NodeIDFromBytes(b[:])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (c *managerClient) ReleaseNodes(ids []types.NodeID) ([]types.NodeID, error) {
	wireIDs := make([][16]byte, len(ids))
	for i, id := range ids {
		wireIDs[i] = id.Bytes()
	}
	body, err := wire.Encode(wire.ManagerReleaseRequest{NodeIDs: wireIDs})
	if err != nil {
		return nil, err
	}
	_, respBody, err := c.call("manager_release", wire.OpManagerRelease, body)
	if err != nil {
		return nil, err
	}
	var resp wire.ManagerReleaseResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, err
	}
	reclaimed := make([]types.NodeID, len(resp.Reclaimed))
	for i, b := range resp.Reclaimed {
		id, err := types.NodeIDFromBytes(b[:])
		if err != nil {
			return nil, err
		}
		reclaimed[i] = id
	}
	return reclaimed, nil
}

func (c *managerClient) ListLiveBlockServerAddrs() ([]string, error) {
	_, respBody, err := c.call("manager_list_live_block_servers", wire.OpManagerListLiveBlockServers, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.ManagerListLiveBlockServersResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Addrs, nil
}
