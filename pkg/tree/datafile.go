package tree

import (
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// DataFile is the addressable mutable byte sequence of spec.md §3.3,
// backed by a balanced tree whose leaves concatenate to the byte image.
// One DataFile wraps one key's subtree root; the key index (index.go) maps
// a Key to that root.
type DataFile struct {
	tx   *Transaction
	root types.NodeID
	pos  int64
}

// OpenDataFile wraps an existing subtree root (types.NilNodeID for a
// brand-new, empty DataFile) for reading and copy-on-write mutation within
// tx.
func OpenDataFile(tx *Transaction, root types.NodeID) *DataFile {
	return &DataFile{tx: tx, root: root}
}

// Root returns the DataFile's current subtree root, reflecting any writes
// made so far in this transaction.
func (df *DataFile) Root() types.NodeID { return df.root }

// Size returns the DataFile's current byte length.
func (df *DataFile) Size() (int64, error) {
	return df.tx.dataSize(df.root)
}

// Position sets the cursor used by Get/Put (spec.md §3.3 "position").
func (df *DataFile) Position(p int64) { df.pos = p }

// Pos returns the cursor's current offset.
func (df *DataFile) Pos() int64 { return df.pos }

// Get reads n bytes starting at the cursor and advances it.
func (df *DataFile) Get(n int64) ([]byte, error) {
	data, err := df.tx.dataReadAt(df.root, df.pos, n)
	if err != nil {
		return nil, err
	}
	df.pos += n
	return data, nil
}

// Put copy-on-write overwrites len(data) bytes at the cursor and advances
// it. The write must fall within the DataFile's current size; growing the
// file first requires SetSize (spec.md §3.3 lists setSize as its own op).
func (df *DataFile) Put(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	size, err := df.Size()
	if err != nil {
		return err
	}
	if df.pos < 0 || df.pos+int64(len(data)) > size {
		return mckoierr.New(mckoierr.KindInternal, "put: write extends past DataFile size; call SetSize first")
	}
	newRoot, err := df.tx.dataWriteAt(df.root, df.pos, data)
	if err != nil {
		return err
	}
	df.root = newRoot
	df.pos += int64(len(data))
	return nil
}

// SetSize grows (appending zero-filled leaves) or shrinks (truncating
// trailing subtrees) the DataFile to exactly n bytes.
func (df *DataFile) SetSize(n int64) error {
	newRoot, err := df.tx.dataSetSize(df.root, n)
	if err != nil {
		return err
	}
	df.root = newRoot
	return nil
}

// Shift inserts (delta > 0) or removes (delta < 0) delta bytes at the
// cursor, rewriting the affected subtree (spec.md §3.3). The newly opened
// gap on insert is left zero-filled; callers typically follow Shift with a
// Put to fill it.
func (df *DataFile) Shift(delta int64) error {
	if delta == 0 {
		return nil
	}
	size, err := df.Size()
	if err != nil {
		return err
	}
	if delta > 0 {
		tail, err := df.tx.dataReadAt(df.root, df.pos, size-df.pos)
		if err != nil {
			return err
		}
		if err := df.SetSize(size + delta); err != nil {
			return err
		}
		newRoot, err := df.tx.dataWriteAt(df.root, df.pos+delta, tail)
		if err != nil {
			return err
		}
		newRoot, err = df.tx.dataWriteAt(newRoot, df.pos, make([]byte, delta))
		if err != nil {
			return err
		}
		df.root = newRoot
		return nil
	}

	removed := -delta
	if df.pos+removed > size {
		return mckoierr.New(mckoierr.KindInternal, "shift: removal extends past end")
	}
	tail, err := df.tx.dataReadAt(df.root, df.pos+removed, size-df.pos-removed)
	if err != nil {
		return err
	}
	newRoot, err := df.tx.dataWriteAt(df.root, df.pos, tail)
	if err != nil {
		return err
	}
	df.root = newRoot
	return df.SetSize(size + delta)
}

// CopyFrom copies n bytes from other's cursor into df's cursor, advancing
// both, growing df if needed (spec.md §3.3 "copyFrom(other, n)"). This is a
// byte-level copy; see ReplicateFrom for the structural-sharing variant.
func (df *DataFile) CopyFrom(other *DataFile, n int64) error {
	data, err := df.tx.dataReadAt(other.root, other.pos, n)
	if err != nil {
		return err
	}
	size, err := df.Size()
	if err != nil {
		return err
	}
	if df.pos+n > size {
		if err := df.SetSize(df.pos + n); err != nil {
			return err
		}
	}
	newRoot, err := df.tx.dataWriteAt(df.root, df.pos, data)
	if err != nil {
		return err
	}
	df.root = newRoot
	df.pos += n
	other.pos += n
	return nil
}

// ReplicateFrom makes df an alias of other's entire content (spec.md
// §4.4.5): if other's root is already permanent, df simply adopts that
// root by reference — no bytes move, and the two DataFiles share the
// subtree until one of them is next written (which copies-on-write as
// usual). If other's root is still a transaction-local temporary id, the
// reference can't be safely shared (it may yet be rewritten by other's
// own pending mutations), so this falls back to a byte-level copy.
func (df *DataFile) ReplicateFrom(other *DataFile) error {
	if other.root.IsPermanent() {
		df.root = other.root
		df.pos = 0
		return nil
	}
	size, err := other.Size()
	if err != nil {
		return err
	}
	data, err := df.tx.dataReadAt(other.root, 0, size)
	if err != nil {
		return err
	}
	if err := df.SetSize(size); err != nil {
		return err
	}
	newRoot, err := df.tx.dataWriteAt(df.root, 0, data)
	if err != nil {
		return err
	}
	df.root = newRoot
	df.pos = 0
	return nil
}

// --- Transaction-level byte-tree primitives backing DataFile ---

func (tx *Transaction) dataSize(root types.NodeID) (int64, error) {
	if root.IsNil() {
		return 0, nil
	}
	n, err := tx.getNode(root)
	if err != nil {
		return 0, err
	}
	return n.SubtreeSize(), nil
}

func (tx *Transaction) dataReadAt(id types.NodeID, offset, n int64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if id.IsNil() {
		return nil, mckoierr.New(mckoierr.KindInternal, "read past end of empty DataFile")
	}
	node, err := tx.getNode(id)
	if err != nil {
		return nil, err
	}
	switch v := node.(type) {
	case *types.LeafNode:
		if offset < 0 || offset+n > int64(len(v.Data)) {
			return nil, mckoierr.New(mckoierr.KindInternal, "read past end of leaf")
		}
		out := make([]byte, n)
		copy(out, v.Data[offset:offset+n])
		return out, nil
	case *types.BranchNode:
		out := make([]byte, 0, n)
		need := n
		var cumulative int64
		for _, e := range v.Entries {
			childStart, childEnd := cumulative, cumulative+e.SubtreeSize
			cumulative = childEnd
			if need <= 0 {
				break
			}
			readGlobalStart := offset + int64(len(out))
			if readGlobalStart >= childEnd {
				continue
			}
			localOffset := readGlobalStart - childStart
			avail := childEnd - readGlobalStart
			take := need
			if take > avail {
				take = avail
			}
			chunk, err := tx.dataReadAt(e.ChildID, localOffset, take)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
			need -= take
		}
		if need > 0 {
			return nil, mckoierr.New(mckoierr.KindInternal, "read past end of branch")
		}
		return out, nil
	default:
		return nil, mckoierr.New(mckoierr.KindInternal, "dataReadAt: unknown node type")
	}
}

func (tx *Transaction) dataWriteAt(id types.NodeID, offset int64, data []byte) (types.NodeID, error) {
	if len(data) == 0 {
		return id, nil
	}
	if id.IsNil() {
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "write past end of empty DataFile")
	}
	node, err := tx.getNode(id)
	if err != nil {
		return types.NodeID{}, err
	}
	switch v := node.(type) {
	case *types.LeafNode:
		if offset < 0 || offset+int64(len(data)) > int64(len(v.Data)) {
			return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "write past end of leaf")
		}
		newData := make([]byte, len(v.Data))
		copy(newData, v.Data)
		copy(newData[offset:], data)
		newID := tx.newTempID()
		tx.putDirty(&types.LeafNode{NodeIDField: newID, Data: newData, RefCountHint: v.RefCountHint})
		return newID, nil
	case *types.BranchNode:
		entries := make([]types.BranchEntry, len(v.Entries))
		copy(entries, v.Entries)
		var cumulative int64
		for i := range entries {
			childStart, childEnd := cumulative, cumulative+entries[i].SubtreeSize
			cumulative = childEnd
			writeGlobalStart := offset
			writeGlobalEnd := offset + int64(len(data))
			if writeGlobalEnd <= childStart || writeGlobalStart >= childEnd {
				continue
			}
			localOffset := int64(0)
			if writeGlobalStart > childStart {
				localOffset = writeGlobalStart - childStart
			}
			sliceStart := childStart + localOffset - offset
			sliceEnd := sliceStart + (childEnd - (childStart + localOffset))
			if sliceEnd > int64(len(data)) {
				sliceEnd = int64(len(data))
			}
			newChild, err := tx.dataWriteAt(entries[i].ChildID, localOffset, data[sliceStart:sliceEnd])
			if err != nil {
				return types.NodeID{}, err
			}
			entries[i].ChildID = newChild
		}
		newID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: newID, Entries: entries})
		return newID, nil
	default:
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "dataWriteAt: unknown node type")
	}
}

func (tx *Transaction) dataSetSize(root types.NodeID, newSize int64) (types.NodeID, error) {
	if newSize < 0 {
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "setSize: negative size")
	}
	curSize, err := tx.dataSize(root)
	if err != nil {
		return types.NodeID{}, err
	}
	if newSize == curSize {
		return root, nil
	}
	if newSize < curSize {
		return tx.truncate(root, newSize)
	}
	growth := newSize - curSize
	cur := root
	for growth > 0 {
		chunk := growth
		if chunk > types.MaxLeafPayload {
			chunk = types.MaxLeafPayload
		}
		leafID := tx.newTempID()
		tx.putDirty(&types.LeafNode{NodeIDField: leafID, Data: make([]byte, chunk)})
		next, err := tx.appendChild(cur, leafID, chunk)
		if err != nil {
			return types.NodeID{}, err
		}
		cur = next
		growth -= chunk
	}
	return cur, nil
}

// appendChild grows a byte tree by one trailing leaf, wrapping in (or
// splitting) a branch level as needed.
func (tx *Transaction) appendChild(root types.NodeID, childID types.NodeID, childSize int64) (types.NodeID, error) {
	if root.IsNil() {
		return childID, nil
	}
	n, err := tx.getNode(root)
	if err != nil {
		return types.NodeID{}, err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		return tx.newBranch([]types.BranchEntry{
			{ChildID: root, SubtreeSize: v.SubtreeSize()},
			{ChildID: childID, SubtreeSize: childSize},
		}), nil
	case *types.BranchNode:
		entries := make([]types.BranchEntry, len(v.Entries), len(v.Entries)+1)
		copy(entries, v.Entries)
		entries = append(entries, types.BranchEntry{ChildID: childID, SubtreeSize: childSize})
		if len(entries) <= types.MaxBranchFanout {
			newID := tx.newTempID()
			tx.putDirty(&types.BranchNode{NodeIDField: newID, Entries: entries})
			return newID, nil
		}
		mid := len(entries) / 2
		leftID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: leftID, Entries: entries[:mid]})
		rightID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: rightID, Entries: entries[mid:]})
		return tx.newBranch([]types.BranchEntry{
			{ChildID: leftID, SubtreeSize: sumSizes(entries[:mid])},
			{ChildID: rightID, SubtreeSize: sumSizes(entries[mid:])},
		}), nil
	default:
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "appendChild: unknown node type")
	}
}

// truncate shrinks a byte tree to newSize, dropping trailing subtrees
// entirely and recursively shrinking the one subtree straddling the new
// boundary. A branch left with a single child collapses to that child.
func (tx *Transaction) truncate(id types.NodeID, newSize int64) (types.NodeID, error) {
	if newSize <= 0 {
		return types.NilNodeID, nil
	}
	n, err := tx.getNode(id)
	if err != nil {
		return types.NodeID{}, err
	}
	switch v := n.(type) {
	case *types.LeafNode:
		if newSize >= int64(len(v.Data)) {
			return id, nil
		}
		data := make([]byte, newSize)
		copy(data, v.Data[:newSize])
		newID := tx.newTempID()
		tx.putDirty(&types.LeafNode{NodeIDField: newID, Data: data, RefCountHint: v.RefCountHint})
		return newID, nil
	case *types.BranchNode:
		var cumulative int64
		var kept []types.BranchEntry
		for _, e := range v.Entries {
			if cumulative >= newSize {
				break
			}
			end := cumulative + e.SubtreeSize
			if end <= newSize {
				kept = append(kept, e)
			} else {
				childNewSize := newSize - cumulative
				newChild, err := tx.truncate(e.ChildID, childNewSize)
				if err != nil {
					return types.NodeID{}, err
				}
				kept = append(kept, types.BranchEntry{ChildID: newChild, LeftKeyBound: e.LeftKeyBound, SubtreeSize: childNewSize})
			}
			cumulative = end
		}
		if len(kept) == 1 {
			return kept[0].ChildID, nil
		}
		newID := tx.newTempID()
		tx.putDirty(&types.BranchNode{NodeIDField: newID, Entries: kept})
		return newID, nil
	default:
		return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "truncate: unknown node type")
	}
}
