package txrange

import "github.com/mckoi/mckoiddb/pkg/types"

// Classification is the three-way outcome spec.md §4.3.3 assigns to a pair
// of concurrently-committed transactions' touched ranges.
type Classification int

const (
	// Disjoint means the two transactions touched no overlapping keys; the
	// merge always succeeds (spec.md §4.3.3 "no key overlap").
	Disjoint Classification = iota
	// SoftConflict means both touched overlapping keys but neither
	// transaction's unique-constraint set intersects the other's, so the
	// three-way merge may still succeed structurally (spec.md §4.3.3;
	// types.FaultMergeRequired is the fault kind raised if it does not).
	SoftConflict
	// HardConflict means both transactions recorded the same key in their
	// exact unique-constraint sets — e.g. two inserts into the same
	// ordered-unique list position — which can never be merged
	// automatically (spec.md §4.3.3, types.FaultConcurrentConflict).
	HardConflict
)

func (c Classification) String() string {
	switch c {
	case Disjoint:
		return "disjoint"
	case SoftConflict:
		return "soft"
	case HardConflict:
		return "hard"
	default:
		return "unknown"
	}
}

// Classify compares a candidate transaction's summary against a summary
// already present in the root server's commit history (spec.md §4.3.2's
// "history intersection" step). It must never produce a false Disjoint: the
// bloom filter can only say a key is "possibly touched", so any MightContain
// hit on either side escalates past Disjoint. A false HardConflict is
// acceptable (it only forces a merge attempt that would have succeeded
// anyway); a false Disjoint is not, since it would skip the merge check
// entirely.
func Classify(candidate, existing *Summary) Classification {
	overlap := bloomOverlap(candidate, existing)
	hard := uniqueOverlap(candidate, existing)

	switch {
	case hard:
		return HardConflict
	case overlap:
		return SoftConflict
	default:
		return Disjoint
	}
}

// bloomOverlap reports whether a and b may have touched a key in common.
// Two tests feed this, both one-directional-safe (never a false Disjoint):
// each side's exact unique keys probed against the other's bloom filter
// (precise whenever a unique key is involved), and a bitwise intersection
// of the two full bloom bit arrays (covers plain TouchWrite/TouchRead
// overlaps, which Summary does not track as an exact key list). Without
// the bit-array test, two transactions that both plainly write the same
// key — the common case, no unique constraint involved — would never be
// seen as touching anything in common, since neither side's UniqueKeys()
// would contain that key to probe with.
func bloomOverlap(a, b *Summary) bool {
	for _, k := range a.UniqueKeys() {
		if b.MightContain(k) {
			return true
		}
	}
	for _, k := range b.UniqueKeys() {
		if a.MightContain(k) {
			return true
		}
	}
	return bitsIntersect(a, b)
}

// bitsIntersect reports whether a and b's bloom bit arrays share any set
// bit. Both summaries use identical bloom parameters (package defaults),
// so two summaries with no touched key in common can never share a set
// bit; a shared bit means "possibly overlapping", same as MightContain for
// a single key, just generalized across the whole touched set rather than
// only the exact unique-key list.
func bitsIntersect(a, b *Summary) bool {
	if len(a.bits) != len(b.bits) {
		// Mismatched bloom parameters should never happen (both sides use
		// the same package defaults); refuse to claim Disjoint rather than
		// risk a false negative.
		return true
	}
	for i, w := range a.bits {
		if w&b.bits[i] != 0 {
			return true
		}
	}
	return false
}

// uniqueOverlap reports an exact intersection between the two summaries'
// unique-constraint key lists — spec.md §4.3.3's hard-conflict trigger.
func uniqueOverlap(a, b *Summary) bool {
	if len(a.uniqueKeys) == 0 || len(b.uniqueKeys) == 0 {
		return false
	}
	set := make(map[types.Key]struct{}, len(a.uniqueKeys))
	for _, k := range a.uniqueKeys {
		set[k] = struct{}{}
	}
	for _, k := range b.uniqueKeys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// ClassifyFault maps a Classification to the commit-fault kind the root
// server reports when a merge cannot proceed automatically (spec.md §4.3,
// types.CommitFaultKind). Disjoint and auto-mergeable SoftConflict cases
// never reach here; callers invoke ClassifyFault only once the merge
// attempt itself has failed.
func ClassifyFault(c Classification) types.CommitFaultKind {
	if c == HardConflict {
		return types.FaultConcurrentConflict
	}
	return types.FaultMergeRequired
}
