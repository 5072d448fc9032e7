package tree

import (
	"sort"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// indexRecordSize is one (key, target subtree root) record's wire size in
// an index leaf: 16 bytes of Key.Bytes() plus 16 bytes of NodeID.Bytes().
const indexRecordSize = 32

// maxIndexRecords bounds how many records one index leaf holds before it
// must split, spec.md §4.4.3 "splitting when exceeding max payload".
const maxIndexRecords = types.MaxLeafPayload / indexRecordSize

// indexRecord is one ordered-key-index entry (spec.md §4.4.1: "a key
// index, itself a tree, maps keys to subtree roots").
type indexRecord struct {
	Key    types.Key
	Target types.NodeID
}

func encodeIndexLeaf(id types.NodeID, records []indexRecord) *types.LeafNode {
	data := make([]byte, len(records)*indexRecordSize)
	for i, r := range records {
		kb := r.Key.Bytes()
		tb := r.Target.Bytes()
		off := i * indexRecordSize
		copy(data[off:off+16], kb[:])
		copy(data[off+16:off+32], tb[:])
	}
	return &types.LeafNode{NodeIDField: id, Data: data}
}

func decodeIndexLeaf(leaf *types.LeafNode) ([]indexRecord, error) {
	if len(leaf.Data)%indexRecordSize != 0 {
		return nil, mckoierr.New(mckoierr.KindInternal, "index leaf payload not a multiple of record size")
	}
	n := len(leaf.Data) / indexRecordSize
	records := make([]indexRecord, n)
	for i := 0; i < n; i++ {
		off := i * indexRecordSize
		key, err := types.KeyFromBytes(leaf.Data[off : off+16])
		if err != nil {
			return nil, err
		}
		target, err := types.NodeIDFromBytes(leaf.Data[off+16 : off+32])
		if err != nil {
			return nil, err
		}
		records[i] = indexRecord{Key: key, Target: target}
	}
	return records, nil
}

// Seek looks up key's subtree root in tx's key index rooted at root,
// walking branch nodes by left_key_bound per spec.md §4.4.2.
func (tx *Transaction) Seek(root types.NodeID, key types.Key) (types.NodeID, bool, error) {
	if root.IsNil() {
		return types.NodeID{}, false, nil
	}
	n, err := tx.getNode(root)
	if err != nil {
		return types.NodeID{}, false, err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return types.NodeID{}, false, err
		}
		i := sort.Search(len(records), func(i int) bool { return !records[i].Key.Less(key) })
		if i < len(records) && records[i].Key.Compare(key) == 0 {
			return records[i].Target, true, nil
		}
		return types.NodeID{}, false, nil
	case *types.BranchNode:
		if len(v.Entries) == 0 {
			return types.NodeID{}, false, nil
		}
		idx := v.SeekChild(key)
		return tx.Seek(v.Entries[idx].ChildID, key)
	default:
		return types.NodeID{}, false, mckoierr.New(mckoierr.KindInternal, "seek: unknown node type")
	}
}

// Insert maps key to target in tx's key index rooted at root, returning the
// new root (spec.md §4.4.3: copy-on-write, splitting an overfull leaf).
// An existing mapping for key is overwritten.
func (tx *Transaction) Insert(root types.NodeID, key types.Key, target types.NodeID) (types.NodeID, error) {
	tx.Touched.TouchWrite(key)
	if root.IsNil() {
		id := tx.newTempID()
		leaf := encodeIndexLeaf(id, []indexRecord{{Key: key, Target: target}})
		tx.putDirty(leaf)
		return id, nil
	}

	newChild, split, err := tx.insertInto(root, key, target)
	if err != nil {
		return types.NodeID{}, err
	}
	if split == nil {
		return newChild, nil
	}
	// The root itself split: build a fresh two-entry branch above both
	// halves (spec.md §4.4.3 step 3: "propagate the new temporary ids
	// upward").
	return tx.newBranch([]types.BranchEntry{
		{ChildID: newChild, LeftKeyBound: types.MinKey, SubtreeSize: split.leftSize},
		{ChildID: split.rightID, LeftKeyBound: split.splitKey, SubtreeSize: split.rightSize},
	}), nil
}

// splitResult describes a node that overflowed during insertInto and had
// to split into two siblings.
type splitResult struct {
	rightID  types.NodeID
	splitKey types.Key
	leftSize int64
	rightSize int64
}

// insertInto recursively applies Insert, copying every node on the path to
// the root exactly once (spec.md §4.4.3 steps 1-3), returning the
// (possibly new) id of the node at this level and, if it overflowed, a
// description of its new right sibling.
func (tx *Transaction) insertInto(id types.NodeID, key types.Key, target types.NodeID) (types.NodeID, *splitResult, error) {
	n, err := tx.getNode(id)
	if err != nil {
		return types.NodeID{}, nil, err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return types.NodeID{}, nil, err
		}
		i := sort.Search(len(records), func(i int) bool { return !records[i].Key.Less(key) })
		if i < len(records) && records[i].Key.Compare(key) == 0 {
			records[i].Target = target
		} else {
			records = append(records, indexRecord{})
			copy(records[i+1:], records[i:])
			records[i] = indexRecord{Key: key, Target: target}
		}
		if len(records) <= maxIndexRecords {
			newID := tx.newTempID()
			tx.putDirty(encodeIndexLeaf(newID, records))
			return newID, nil, nil
		}
		// Overflow: split evenly.
		mid := len(records) / 2
		leftID := tx.newTempID()
		tx.putDirty(encodeIndexLeaf(leftID, records[:mid]))
		rightID := tx.newTempID()
		tx.putDirty(encodeIndexLeaf(rightID, records[mid:]))
		return leftID, &splitResult{
			rightID:   rightID,
			splitKey:  records[mid].Key,
			leftSize:  int64(mid) * indexRecordSize,
			rightSize: int64(len(records)-mid) * indexRecordSize,
		}, nil

	case *types.BranchNode:
		idx := v.SeekChild(key)
		childID, split, err := tx.insertInto(v.Entries[idx].ChildID, key, target)
		if err != nil {
			return types.NodeID{}, nil, err
		}
		entries := make([]types.BranchEntry, len(v.Entries))
		copy(entries, v.Entries)
		entries[idx].ChildID = childID
		if split != nil {
			entries[idx].SubtreeSize = split.leftSize
			newEntry := types.BranchEntry{ChildID: split.rightID, LeftKeyBound: split.splitKey, SubtreeSize: split.rightSize}
			entries = append(entries, types.BranchEntry{})
			copy(entries[idx+2:], entries[idx+1:])
			entries[idx+1] = newEntry
		} else {
			entries[idx].SubtreeSize = tx.subtreeSizeOf(childID)
		}
		if len(entries) <= types.MaxBranchFanout {
			newID := tx.newTempID()
			tx.putDirty(&types.BranchNode{NodeIDField: newID, Entries: entries})
			return newID, nil, nil
		}
		mid := len(entries) / 2
		leftID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: leftID, Entries: entries[:mid]})
		rightID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: rightID, Entries: entries[mid:]})
		return leftID, &splitResult{
			rightID:   rightID,
			splitKey:  entries[mid].LeftKeyBound,
			leftSize:  sumSizes(entries[:mid]),
			rightSize: sumSizes(entries[mid:]),
		}, nil

	default:
		return types.NodeID{}, nil, mckoierr.New(mckoierr.KindInternal, "insertInto: unknown node type")
	}
}

func sumSizes(entries []types.BranchEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.SubtreeSize
	}
	return total
}

// subtreeSizeOf returns a just-written dirty node's SubtreeSize (dirty
// nodes are always resident, never requiring a source read).
func (tx *Transaction) subtreeSizeOf(id types.NodeID) int64 {
	if n, ok := tx.dirty[id]; ok {
		return n.SubtreeSize()
	}
	if n, ok := tx.cache.Get(id); ok {
		return n.SubtreeSize()
	}
	return 0
}

func (tx *Transaction) newBranch(entries []types.BranchEntry) types.NodeID {
	id := tx.newTempID()
	tx.putDirty(&types.BranchNode{NodeIDField: id, Entries: entries})
	return id
}

// Delete removes key from tx's key index rooted at root, returning the new
// root. A no-op if key is absent. Underfull leaves left by a delete are not
// merged with siblings (a scoped simplification of spec.md §4.4.3's
// "merging with siblings when below min" — see DESIGN.md); correctness is
// unaffected, only fan-out.
func (tx *Transaction) Delete(root types.NodeID, key types.Key) (types.NodeID, error) {
	tx.Touched.TouchWrite(key)
	if root.IsNil() {
		return root, nil
	}
	newID, err := tx.deleteFrom(root, key)
	if err != nil {
		return types.NodeID{}, err
	}
	return newID, nil
}

func (tx *Transaction) deleteFrom(id types.NodeID, key types.Key) (types.NodeID, error) {
	n, err := tx.getNode(id)
	if err != nil {
		return types.NodeID{}, err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return types.NodeID{}, err
		}
		i := sort.Search(len(records), func(i int) bool { return !records[i].Key.Less(key) })
		if i >= len(records) || records[i].Key.Compare(key) != 0 {
			return id, nil // absent: no-op
		}
		records = append(records[:i], records[i+1:]...)
		newID := tx.newTempID()
		tx.putDirty(encodeIndexLeaf(newID, records))
		return newID, nil
	case *types.BranchNode:
		idx := v.SeekChild(key)
		childID, err := tx.deleteFrom(v.Entries[idx].ChildID, key)
		if err != nil {
			return types.NodeID{}, err
		}
		entries := make([]types.BranchEntry, len(v.Entries))
		copy(entries, v.Entries)
		entries[idx].ChildID = childID
		entries[idx].SubtreeSize = tx.subtreeSizeOf(childID)
		newID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: newID, Entries: entries})
		return newID, nil
	default:
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "deleteFrom: unknown node type")
	}
}

// Cursor is an ordered, forward-only iterator over a key index's records
// from a starting key (spec.md §4.4.8: "seek(key) -> cursor... next()").
// stack holds one frame per level on the path from root to the cursor's
// current leaf, branch frames included, so Next can ascend out of an
// exhausted leaf and descend into the next sibling subtree rather than
// stopping at the first leaf boundary.
type Cursor struct {
	tx    *Transaction
	stack []cursorFrame
	err   error
}

// cursorFrame is either a leaf frame (records != nil, pos indexes the next
// unconsumed record) or a branch frame (entries != nil, pos indexes the
// next child still to be visited).
type cursorFrame struct {
	entries []types.BranchEntry
	records []indexRecord
	pos     int
}

// SeekCursor positions a cursor at the first record >= key in the index rooted
// at root.
func (tx *Transaction) SeekCursor(root types.NodeID, key types.Key) (*Cursor, error) {
	c := &Cursor{tx: tx}
	if root.IsNil() {
		return c, nil
	}
	if err := c.descend(root, key); err != nil {
		return nil, err
	}
	return c, nil
}

// descend walks from id down to the leaf containing (or bounding) key,
// pushing a frame per branch level crossed along the way.
func (c *Cursor) descend(id types.NodeID, key types.Key) error {
	n, err := c.tx.getNode(id)
	if err != nil {
		return err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return err
		}
		i := sort.Search(len(records), func(i int) bool { return !records[i].Key.Less(key) })
		c.stack = append(c.stack, cursorFrame{records: records, pos: i})
		return nil
	case *types.BranchNode:
		if len(v.Entries) == 0 {
			return nil
		}
		idx := v.SeekChild(key)
		c.stack = append(c.stack, cursorFrame{entries: v.Entries, pos: idx + 1})
		return c.descend(v.Entries[idx].ChildID, key)
	default:
		return mckoierr.New(mckoierr.KindInternal, "descend: unknown node type")
	}
}

// descendLeftmost pushes frames down the leftmost path from id. It is used
// when Next moves into a sibling subtree: every record under id is already
// known to be >= everything the cursor has returned so far, so there is no
// key to seek past, only the first leaf to reach.
func (c *Cursor) descendLeftmost(id types.NodeID) error {
	n, err := c.tx.getNode(id)
	if err != nil {
		return err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		records, err := decodeIndexLeaf(v)
		if err != nil {
			return err
		}
		c.stack = append(c.stack, cursorFrame{records: records, pos: 0})
		return nil
	case *types.BranchNode:
		if len(v.Entries) == 0 {
			return nil
		}
		c.stack = append(c.stack, cursorFrame{entries: v.Entries, pos: 1})
		return c.descendLeftmost(v.Entries[0].ChildID)
	default:
		return mckoierr.New(mckoierr.KindInternal, "descendLeftmost: unknown node type")
	}
}

// Next returns the cursor's current (key, target) pair and advances,
// reporting ok=false once the index is exhausted or a read fails (check
// Err to distinguish the two).
func (c *Cursor) Next() (key types.Key, target types.NodeID, ok bool) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.records != nil {
			if top.pos < len(top.records) {
				r := top.records[top.pos]
				top.pos++
				return r.Key, r.Target, true
			}
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		if top.pos < len(top.entries) {
			child := top.entries[top.pos].ChildID
			top.pos++
			if err := c.descendLeftmost(child); err != nil {
				c.err = err
				c.stack = nil
				return types.Key{}, types.NodeID{}, false
			}
			continue
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return types.Key{}, types.NodeID{}, false
}

// Err returns the first error encountered while advancing the cursor, if
// any, the same way bufio.Scanner separates "done" from "failed".
func (c *Cursor) Err() error {
	return c.err
}
