package root

import (
	"sync"
	"time"

	"github.com/mckoi/mckoiddb/pkg/metrics"
	"github.com/mckoi/mckoiddb/pkg/mckoierr"
	"github.com/mckoi/mckoiddb/pkg/txrange"
	"github.com/mckoi/mckoiddb/pkg/types"
)

// Outcome is the result of a Commit call, mirroring wire.RootCommitResponse
// (spec.md §4.3.2's Ok | CommitFault | "merge descriptor" three-way split).
type Outcome int

const (
	// OutcomeOk means the commit was accepted; NewRoot is now current_root.
	OutcomeOk Outcome = iota
	// OutcomeFault means the commit is permanently rejected; the caller's
	// transaction is invalidated (spec.md §7).
	OutcomeFault
	// OutcomeMergeNeeded means the client must rebase proposed_root against
	// CurrentRoot and resubmit (spec.md §4.3.2 step 5).
	OutcomeMergeNeeded
)

// CommitResult is Commit's return value.
type CommitResult struct {
	Outcome     Outcome
	NewRoot     types.NodeID          // valid when Outcome == OutcomeOk
	FaultKind   types.CommitFaultKind // valid when Outcome != OutcomeOk
	CurrentRoot types.NodeID          // valid when Outcome != OutcomeOk: what to rebase against
}

// Config configures an Engine.
type Config struct {
	DataDir       string
	HistoryDepth  int   // default 64
	TxnCacheBytes int64 // default 14 MiB
}

// Engine owns every path a root server process serves (spec.md §4.3: "one
// root server owns a path"; a process may own several). Each path gets its
// own commit lock, history ring, transaction cache, and bbolt-backed
// persistence file, so that commit load against one path never contends
// with another.
type Engine struct {
	cfg Config

	mu    sync.Mutex // guards paths map membership only, not commit critical sections
	paths map[types.PathName]*pathState
}

type pathState struct {
	name types.PathName

	mu           sync.Mutex // spec.md §4.3 "lock: single-writer mutex"
	currentRoot  types.NodeID
	history      *historyRing
	txnCache     *txnCache
	nextCommitID uint64
	store        *pathStore
}

// NewEngine creates an Engine; paths are opened lazily on first use via
// the unexported path helper.
func NewEngine(cfg Config) *Engine {
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = defaultHistoryDepth
	}
	if cfg.TxnCacheBytes <= 0 {
		cfg.TxnCacheBytes = defaultRootTxnCache
	}
	return &Engine{cfg: cfg, paths: make(map[types.PathName]*pathState)}
}

// path returns the state for name, opening (and warm-starting from disk)
// it on first access.
func (e *Engine) path(name types.PathName) (*pathState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ps, ok := e.paths[name]; ok {
		return ps, nil
	}

	store, err := openPathStore(e.cfg.DataDir, name)
	if err != nil {
		return nil, err
	}
	currentRoot, history, err := store.load()
	if err != nil {
		store.Close()
		return nil, err
	}

	ring := newHistoryRing(e.cfg.HistoryDepth)
	var nextCommitID uint64
	for _, entry := range history {
		ring.Add(entry)
		if entry.CommitID >= nextCommitID {
			nextCommitID = entry.CommitID + 1
		}
	}

	ps := &pathState{
		name:         name,
		currentRoot:  currentRoot,
		history:      ring,
		txnCache:     newTxnCache(e.cfg.TxnCacheBytes),
		nextCommitID: nextCommitID,
		store:        store,
	}
	e.paths[name] = ps
	metrics.RootHistoryDepth.WithLabelValues(string(name)).Set(float64(ring.Len()))
	return ps, nil
}

// BeginTransaction implements spec.md §4.3.1: atomically read current_root
// and hand it back as the new transaction's base.
func (e *Engine) BeginTransaction(name types.PathName) (types.NodeID, error) {
	ps, err := e.path(name)
	if err != nil {
		return types.NodeID{}, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.currentRoot, nil
}

// Current returns a path's current_root without opening a transaction.
func (e *Engine) Current(name types.PathName) (types.NodeID, error) {
	return e.BeginTransaction(name)
}

// History returns a path's retained commit history, oldest first: every
// root still inside the history ring's depth (spec.md §3.6), which is
// exactly the set of roots a rebase or a rollback can still target. The
// `show-roots` CLI and a GC sweep's RetainedRoots both read this list
// directly rather than each re-deriving it.
func (e *Engine) History(name types.PathName) ([]types.HistoryEntry, error) {
	ps, err := e.path(name)
	if err != nil {
		return nil, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.history.All(), nil
}

// CachedRoot returns a path's transaction cache hit for root, if any
// (spec.md §4.3.4). The client tree store populates this as it decodes
// roots; the root engine itself never decodes tree data.
func (e *Engine) CachedRoot(name types.PathName, root types.NodeID) ([]byte, bool, error) {
	ps, err := e.path(name)
	if err != nil {
		return nil, false, err
	}
	data, ok := ps.txnCache.Get(root)
	return data, ok, nil
}

// CacheRoot records materialized root data in a path's transaction cache.
func (e *Engine) CacheRoot(name types.PathName, root types.NodeID, data []byte) error {
	ps, err := e.path(name)
	if err != nil {
		return err
	}
	ps.txnCache.Put(root, data)
	metrics.RootTxnCacheBytes.WithLabelValues(string(name)).Set(float64(ps.txnCache.Bytes()))
	return nil
}

// Commit implements spec.md §4.3.2's commit protocol.
func (e *Engine) Commit(name types.PathName, baseRoot, proposedRoot types.NodeID, touched *txrange.Summary) (CommitResult, error) {
	ps, err := e.path(name)
	if err != nil {
		return CommitResult{}, err
	}

	timer := metrics.NewTimer()
	ps.mu.Lock()
	defer ps.mu.Unlock()
	defer timer.ObserveDurationVec(metrics.RootCommitDuration, string(name))

	// Step 2: fast path.
	if baseRoot == ps.currentRoot {
		if err := ps.advance(proposedRoot, touched); err != nil {
			return CommitResult{}, err
		}
		metrics.RootCommitsTotal.WithLabelValues(string(name), "ok").Inc()
		return CommitResult{Outcome: OutcomeOk, NewRoot: proposedRoot}, nil
	}

	// Step 3: locate history strictly newer than base_root.
	newer, found := ps.history.newerThan(baseRoot)
	if !found {
		metrics.RootCommitsTotal.WithLabelValues(string(name), "fault_base_too_old").Inc()
		return CommitResult{
			Outcome:     OutcomeFault,
			FaultKind:   types.FaultBaseTooOld,
			CurrentRoot: ps.currentRoot,
		}, nil
	}

	// Step 4: classify against every intervening commit; a single hard
	// conflict is terminal regardless of what else is found.
	worst := txrange.Disjoint
	for _, entry := range newer {
		existing, ok := entry.Touched.(*txrange.Summary)
		if !ok {
			continue
		}
		c := txrange.Classify(touched, existing)
		if c == txrange.HardConflict {
			metrics.RootCommitsTotal.WithLabelValues(string(name), "fault_conflict").Inc()
			return CommitResult{
				Outcome:     OutcomeFault,
				FaultKind:   txrange.ClassifyFault(c),
				CurrentRoot: ps.currentRoot,
			}, nil
		}
		if c > worst {
			worst = c
		}
	}

	// spec.md §4.3.3: even a Disjoint classification ("auto-merge always
	// succeeds") still needs the actual tree union performed, and that
	// lives at the client tree-store layer (package root has no tree
	// decoder) — so every non-hard outcome round-trips through a merge
	// descriptor rather than silently adopting proposed_root, which was
	// built against a stale base and would otherwise drop the intervening
	// commits.
	metrics.RootCommitsTotal.WithLabelValues(string(name), "merge_needed").Inc()
	return CommitResult{
		Outcome:     OutcomeMergeNeeded,
		FaultKind:   txrange.ClassifyFault(worst),
		CurrentRoot: ps.currentRoot,
	}, nil
}

// advance performs the actual state transition shared by the fast path and
// a post-rebase retry: bump current_root, persist, append to the ring.
func (ps *pathState) advance(newRoot types.NodeID, touched *txrange.Summary) error {
	commitID := ps.nextCommitID
	ps.nextCommitID++
	entry := types.HistoryEntry{
		CommitID:  commitID,
		Root:      newRoot,
		Touched:   touched,
		Timestamp: time.Now(),
	}
	if err := ps.store.appendCommit(commitID, entry); err != nil {
		ps.nextCommitID-- // don't burn a commit id on a failed persist
		return err
	}
	ps.currentRoot = newRoot
	ps.history.Add(entry)
	metrics.RootHistoryDepth.WithLabelValues(string(ps.name)).Set(float64(ps.history.Len()))
	return nil
}

// Rollback implements spec.md §4.3.5's supplemented rollback operation.
func (e *Engine) Rollback(name types.PathName, commitID uint64) (types.NodeID, bool, error) {
	ps, err := e.path(name)
	if err != nil {
		return types.NodeID{}, false, err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	entry, found := ps.history.byCommitID(commitID)
	if !found {
		return types.NodeID{}, false, nil
	}
	// A rollback touches no new keys of its own; record an empty summary
	// rather than nil so later conflict classification never dereferences
	// a nil *txrange.Summary.
	if err := ps.advance(entry.Root, txrange.NewSummary()); err != nil {
		return types.NodeID{}, false, err
	}
	return entry.Root, true, nil
}

// Close releases every open path's storage handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, ps := range e.paths {
		if err := ps.store.Close(); err != nil && firstErr == nil {
			firstErr = mckoierr.Wrap(mckoierr.KindFileSystem, "close root store", err)
		}
	}
	return firstErr
}
