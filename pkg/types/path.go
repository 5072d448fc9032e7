package types

import "time"

// PathName names a mount point owned by one root server (spec.md §3.5).
type PathName string

// TxnState is a transaction handle's lifecycle stage (spec.md §3.4):
// open -> mutated -> committed | disposed. A disposed or committed
// transaction is forever invalidated.
type TxnState uint8

const (
	TxnOpen TxnState = iota
	TxnMutated
	TxnCommitted
	TxnDisposed
)

func (s TxnState) String() string {
	switch s {
	case TxnOpen:
		return "open"
	case TxnMutated:
		return "mutated"
	case TxnCommitted:
		return "committed"
	case TxnDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// CommitFaultKind enumerates the terminal, non-Ok outcomes of the commit
// protocol (spec.md §4.3.2, §7).
type CommitFaultKind string

const (
	FaultBaseTooOld       CommitFaultKind = "base_too_old"
	FaultConcurrentConflict CommitFaultKind = "concurrent_conflict"
	FaultMergeRequired    CommitFaultKind = "merge_required"
)

// HistoryEntry is one ring-buffer slot of a path's commit history (spec.md
// §3.6, §4.3.2): the root produced by a commit, the commit's identifier,
// and a compressed summary of the keys that commit touched.
type HistoryEntry struct {
	CommitID  uint64
	Root      NodeID
	Touched   TouchedRangeSummary
	Timestamp time.Time
}

// TouchedRangeSummary is the compact description of the keys a transaction
// read or wrote (spec.md §4.3.3, GLOSSARY). The concrete encoding lives in
// package txrange; this placeholder type lets package types describe
// HistoryEntry without importing txrange (which itself depends on types),
// avoiding an import cycle. Callers type-assert or, more commonly, use
// txrange.Summary directly and rely on Go's structural typing through this
// interface.
type TouchedRangeSummary interface {
	// MightContain reports whether the summary may have touched key k.
	// False negatives are impossible; false positives are allowed (it is
	// bloom-like, spec.md §4.3.3).
	MightContain(k Key) bool
	// UniqueKeys returns the exact set of unique-constraint keys this
	// transaction touched (ordered-unique list inserts, spec.md §4.3.3).
	UniqueKeys() []Key
}
