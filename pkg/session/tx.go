package session

import (
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/tree"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// maxRebaseAttempts bounds spec.md §4.3.2 step 5's rebase-and-resubmit
// loop: a path under sustained write contention retries this many times
// before the commit gives up with a KindCommitFault error reporting
// merge_needed, rather than
// looping forever.
const maxRebaseAttempts = 8

// indexOp is one index-tree mutation recorded for replay against a
// rebased transaction (spec.md §4.3.2 step 5). DataFile-level writes are
// not recorded: replaying a byte-range write against an unrelated sibling
// commit's tree shape would need offset translation this package does not
// attempt, so a transaction that both writes a DataFile and hits
// merge_needed must be retried by its caller rather than by Tx itself.
type indexOp struct {
	kind   indexOpKind
	key    types.Key
	target types.NodeID
}

type indexOpKind int

const (
	opInsert indexOpKind = iota
	opDelete
)

// Tx is the client-visible transaction handle of spec.md §4.5: a
// *tree.Transaction plus the index-tree root it currently evaluates
// Insert/Delete/Seek against (tree.Transaction's own mutating calls take
// root as an explicit parameter rather than tracking one internally,
// since one Transaction's dirty heap also backs independently-rooted
// DataFile subtrees) and the root-server RPCs that open and close it.
type Tx struct {
	session *Session
	path    types.PathName
	rootSrv *rootClient
	txn     *tree.Transaction

	indexRoot    types.NodeID
	log          []indexOp
	usedDataFile bool
}

// Root returns the transaction's current index-tree root, reflecting any
// Insert/Delete/BindDataFile calls made so far.
func (tx *Tx) Root() types.NodeID { return tx.indexRoot }

// State returns the underlying transaction's lifecycle stage.
func (tx *Tx) State() tree.State { return tx.txn.State() }

func (tx *Tx) Seek(key types.Key) (types.NodeID, bool, error) {
	return tx.txn.Seek(tx.indexRoot, key)
}

func (tx *Tx) SeekCursor(key types.Key) (*tree.Cursor, error) {
	return tx.txn.SeekCursor(tx.indexRoot, key)
}

// Insert maps key to target in the index tree, recording the mutation for
// replay if this transaction later needs to rebase.
func (tx *Tx) Insert(key types.Key, target types.NodeID) error {
	newRoot, err := tx.txn.Insert(tx.indexRoot, key, target)
	if err != nil {
		return err
	}
	tx.indexRoot = newRoot
	tx.log = append(tx.log, indexOp{kind: opInsert, key: key, target: target})
	return nil
}

// Delete removes key from the index tree, recording the mutation for
// rebase replay.
func (tx *Tx) Delete(key types.Key) error {
	newRoot, err := tx.txn.Delete(tx.indexRoot, key)
	if err != nil {
		return err
	}
	tx.indexRoot = newRoot
	tx.log = append(tx.log, indexOp{kind: opDelete, key: key})
	return nil
}

// OpenDataFile opens key's backing byte sequence for reading and writing.
// Opening a DataFile marks this transaction as unable to rebase (see
// indexOp's doc comment), whether or not anything is then written through
// it: a later merge_needed fault surfaces directly to the caller instead of
// being retried internally.
func (tx *Tx) OpenDataFile(key types.Key) (*tree.DataFile, error) {
	root, _, err := tx.txn.Seek(tx.indexRoot, key)
	if err != nil {
		return nil, err
	}
	tx.usedDataFile = true
	tx.txn.Touched.TouchRead(key)
	return tree.OpenDataFile(tx.txn, root), nil
}

// BindDataFile re-links key to df's (possibly rewritten, copy-on-write)
// subtree root after a sequence of writes through df, completing the
// "write through the DataFile, then re-insert its root" pattern spec.md
// §3.3 describes.
func (tx *Tx) BindDataFile(key types.Key, df *tree.DataFile) error {
	newRoot, err := tx.txn.Insert(tx.indexRoot, key, df.Root())
	if err != nil {
		return err
	}
	tx.indexRoot = newRoot
	return nil
}

// Cancel disposes the transaction without committing (spec.md §3.4).
func (tx *Tx) Cancel() {
	tx.txn.Dispose()
}

// Commit runs spec.md §4.3.2's three-way commit protocol: flush dirty
// nodes, submit (base_root, proposed_root, touched) to the path's root
// server, and on merge_needed rebase the recorded index-tree operations
// against the server-reported current root and resubmit, up to
// maxRebaseAttempts times.
func (tx *Tx) Commit() (types.NodeID, error) {
	for attempt := 0; ; attempt++ {
		proposedRoot, err := tx.txn.Flush(tx.indexRoot)
		if err != nil {
			metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "error").Inc()
			return types.NodeID{}, err
		}
		tx.indexRoot = proposedRoot

		outcome, err := tx.rootSrv.Commit(tx.path, tx.txn.BaseRoot, proposedRoot, tx.txn.Touched)
		if err != nil {
			metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "error").Inc()
			return types.NodeID{}, err
		}

		switch outcome.Outcome {
		case "ok":
			tx.txn.Dispose()
			metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "ok").Inc()
			return outcome.NewRoot, nil

		case "fault":
			metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "fault").Inc()
			return types.NodeID{}, mckoierr.New(mckoierr.KindCommitFault,
				"commit conflict on "+string(tx.path)+": "+outcome.FaultKind)

		case "merge_needed":
			if tx.usedDataFile {
				metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "merge_needed").Inc()
				return types.NodeID{}, mckoierr.New(mckoierr.KindCommitFault,
					"commit merge_needed on "+string(tx.path)+": DataFile writes cannot be rebased automatically")
			}
			if attempt >= maxRebaseAttempts {
				metrics.SessionCommitsTotal.WithLabelValues(string(tx.path), "merge_needed").Inc()
				return types.NodeID{}, mckoierr.New(mckoierr.KindCommitFault,
					"commit merge_needed on "+string(tx.path)+": exhausted rebase attempts")
			}
			if err := tx.rebase(outcome.CurrentRoot); err != nil {
				return types.NodeID{}, err
			}
			continue

		default:
			return types.NodeID{}, mckoierr.New(mckoierr.KindInternal, "commit: unrecognized outcome "+outcome.Outcome)
		}
	}
}

// rebase replays this transaction's recorded index operations against a
// fresh tree.Transaction opened at currentRoot, then adopts that
// transaction (and its resulting root) as tx's own (spec.md §4.3.2 step
// 5).
func (tx *Tx) rebase(currentRoot types.NodeID) error {
	fresh := tree.New(tx.path, currentRoot, tx.session.source(), tx.session.cache)
	root := currentRoot
	for _, op := range tx.log {
		var err error
		switch op.kind {
		case opInsert:
			root, err = fresh.Insert(root, op.key, op.target)
		case opDelete:
			root, err = fresh.Delete(root, op.key)
		}
		if err != nil {
			return err
		}
	}
	tx.txn = fresh
	tx.indexRoot = root
	return nil
}
