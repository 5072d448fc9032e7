package session

import (
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
	"github.com/mckoi/mckoiddb/pkg/wire"
)

// blockClient issues BS_READ/BS_WRITE against a specific set of candidate
// replica addresses for one call (spec.md §4.1). Read fails over to the
// next replica on any error (§5's "replica failover on read", acceptance
// scenario S5); Write does not fail over (see its own comment).
type blockClient struct {
	secret       []byte
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *blockClient) Read(addrs []string, id types.NodeID) ([]byte, bool, error) {
	body, err := wire.Encode(wire.BlockReadRequest{NodeID: id.Bytes()})
	if err != nil {
		return nil, false, err
	}
	_, respBody, err := callWithFailover(addrs, c.secret, c.readTimeout, "block_read", wire.OpBlockRead, body)
	if err != nil {
		return nil, false, err
	}
	var resp wire.BlockReadResponse
	if err := wire.Decode(respBody, &resp); err != nil {
		return nil, false, err
	}
	return resp.Data, resp.Found, nil
}

// Write writes data under id to every address in addrs, not merely the
// first that succeeds: spec.md §4.1's immutability guarantee is only
// meaningful if every replica in the set actually holds the bytes. It
// returns ImmutableConflict if any replica rejects the write as
// conflicting, per spec.md §7.
func (c *blockClient) Write(addrs []string, id types.NodeID, data []byte) error {
	body, err := wire.Encode(wire.BlockWriteRequest{NodeID: id.Bytes(), Data: data})
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		_, respBody, err := callOnce(addr, c.secret, c.writeTimeout, wire.OpBlockWrite, body)
		if err != nil {
			return mckoierr.Wrap(mckoierr.KindNetwork, "block write to "+addr, err)
		}
		var resp wire.BlockWriteResponse
		if err := wire.Decode(respBody, &resp); err != nil {
			return err
		}
		if resp.Conflict {
			return mckoierr.New(mckoierr.KindImmutableConflict, "block write: differing payload already stored under "+id.String())
		}
	}
	return nil
}
