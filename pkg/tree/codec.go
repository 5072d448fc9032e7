package tree

import (
	"encoding/binary"
	"fmt"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// Encode serializes a node to the byte form stored at a block server
// (spec.md §4.1 treats node bytes as opaque; this is the format the tree
// layer chooses on both sides of that boundary).
//
// Leaf:   tag(1) | refCountHint(4) | data...
// Branch: tag(1) | entryCount(4) | { childID(16) | leftKeyBound(16) | subtreeSize(8) } * entryCount
func Encode(n types.Node) ([]byte, error) {
	switch v := n.(type) {
	case *types.LeafNode:
		buf := make([]byte, 1+4+len(v.Data))
		buf[0] = byte(types.KindLeaf)
		binary.BigEndian.PutUint32(buf[1:5], v.RefCountHint)
		copy(buf[5:], v.Data)
		return buf, nil
	case *types.BranchNode:
		buf := make([]byte, 1+4+len(v.Entries)*40)
		buf[0] = byte(types.KindBranch)
		binary.BigEndian.PutUint32(buf[1:5], uint32(len(v.Entries)))
		off := 5
		for _, e := range v.Entries {
			cid := e.ChildID.Bytes()
			copy(buf[off:off+16], cid[:])
			kb := e.LeftKeyBound.Bytes()
			copy(buf[off+16:off+32], kb[:])
			binary.BigEndian.PutUint64(buf[off+32:off+40], uint64(e.SubtreeSize))
			off += 40
		}
		return buf, nil
	default:
		return nil, mckoierr.New(mckoierr.KindInternal, fmt.Sprintf("encode: unknown node type %T", n))
	}
}

// Decode parses the bytes Encode produced, attaching id as the node's
// identity (the wire form itself carries no id — the block server already
// keys storage by id, so repeating it in the payload would be redundant).
func Decode(id types.NodeID, data []byte) (types.Node, error) {
	if len(data) < 1 {
		return nil, mckoierr.New(mckoierr.KindInternal, "decode: empty node payload")
	}
	switch types.NodeKind(data[0]) {
	case types.KindLeaf:
		if len(data) < 5 {
			return nil, mckoierr.New(mckoierr.KindInternal, "decode: truncated leaf header")
		}
		refCount := binary.BigEndian.Uint32(data[1:5])
		payload := make([]byte, len(data)-5)
		copy(payload, data[5:])
		return &types.LeafNode{NodeIDField: id, Data: payload, RefCountHint: refCount}, nil
	case types.KindBranch:
		if len(data) < 5 {
			return nil, mckoierr.New(mckoierr.KindInternal, "decode: truncated branch header")
		}
		count := binary.BigEndian.Uint32(data[1:5])
		entries := make([]types.BranchEntry, 0, count)
		off := 5
		for i := uint32(0); i < count; i++ {
			if off+40 > len(data) {
				return nil, mckoierr.New(mckoierr.KindInternal, "decode: truncated branch entry")
			}
			childID, err := types.NodeIDFromBytes(data[off : off+16])
			if err != nil {
				return nil, err
			}
			leftKey, err := types.KeyFromBytes(data[off+16 : off+32])
			if err != nil {
				return nil, err
			}
			size := int64(binary.BigEndian.Uint64(data[off+32 : off+40]))
			entries = append(entries, types.BranchEntry{ChildID: childID, LeftKeyBound: leftKey, SubtreeSize: size})
			off += 40
		}
		return &types.BranchNode{NodeIDField: id, Entries: entries}, nil
	default:
		return nil, mckoierr.New(mckoierr.KindInternal, fmt.Sprintf("decode: unknown node kind %d", data[0]))
	}
}

// DecodedSize estimates a node's in-memory footprint for NodeCache
// accounting (spec.md §3.6): a leaf's footprint is its payload length, a
// branch's is a fixed per-entry estimate (BranchEntry is 40 bytes on the
// wire plus Go struct overhead).
func DecodedSize(n types.Node) int64 {
	switch v := n.(type) {
	case *types.LeafNode:
		return int64(len(v.Data))
	case *types.BranchNode:
		return int64(len(v.Entries)) * 48
	default:
		return 0
	}
}
