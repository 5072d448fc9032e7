package txrange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mckoi/mckoiddb/pkg/types"
)

func TestClassifyDisjoint(t *testing.T) {
	a := NewSummary()
	a.TouchWrite(types.NewKey(1, 0, 1))
	b := NewSummary()
	b.TouchWrite(types.NewKey(2, 0, 2))

	assert.Equal(t, Disjoint, Classify(a, b))
}

// TestClassifySoftConflictOnSharedPlainWrite covers spec.md §4.3.3's
// baseline Disjoint definition ("no key in common") from the other side:
// two transactions that both plainly write the same key, with no unique
// constraint on either side, must not classify as Disjoint. Neither side's
// UniqueKeys() contains the shared key, so only the bloom bit-array
// intersection (not the unique-key probe) can catch this.
func TestClassifySoftConflictOnSharedPlainWrite(t *testing.T) {
	k := types.NewKey(9, 0, 9)
	a := NewSummary()
	a.TouchWrite(k)
	b := NewSummary()
	b.TouchWrite(k)

	assert.Equal(t, SoftConflict, Classify(a, b))
}

func TestClassifySoftConflictOnOverlappingUniqueAgainstBloomOnly(t *testing.T) {
	a := NewSummary()
	k := types.NewKey(5, 0, 5)
	a.TouchWrite(k) // plain write, not a unique constraint

	b := NewSummary()
	b.TouchUnique(k) // b's unique key lands inside a's bloom filter

	assert.Equal(t, SoftConflict, Classify(a, b))
}

func TestClassifyHardConflictOnSharedUniqueKey(t *testing.T) {
	k := types.NewKey(7, 0, 7)
	a := NewSummary()
	a.TouchUnique(k)
	b := NewSummary()
	b.TouchUnique(k)

	assert.Equal(t, HardConflict, Classify(a, b))
}

func TestClassificationString(t *testing.T) {
	cases := map[Classification]string{
		Disjoint:       "disjoint",
		SoftConflict:   "soft",
		HardConflict:   "hard",
		Classification(99): "unknown",
	}
	for c, want := range cases {
		assert.Equal(t, want, c.String())
	}
}

func TestClassifyFaultMapping(t *testing.T) {
	assert.Equal(t, types.FaultConcurrentConflict, ClassifyFault(HardConflict))
	assert.Equal(t, types.FaultMergeRequired, ClassifyFault(SoftConflict))
}
