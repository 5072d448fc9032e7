/*
Package txrange implements the touched-range summary of spec.md §4.3.3: a
bloom-like set of touched 128-bit key prefixes plus an exact list of
unique-constraint keys, and the conflict classification (disjoint / soft /
hard) the root server's commit protocol uses to decide whether two
concurrent transactions can auto-merge.

spec.md's Open Questions section is explicit that "the precise summary
encoding... is not uniquely determined by the source; a bloom filter plus
explicit unique-key list is a reasonable floor" — this package is that
floor. xxhash/v2 backs the bloom filter's hash functions because it's the
fast, non-cryptographic hash the pack already depends on (transitively via
raft); no cryptographic property is needed here.
*/
package txrange

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/mckoi/mckoiddb/pkg/types"
)

// defaultBloomBits sizes the bloom filter for a few thousand touched keys
// at roughly a 1% false-positive rate; a touched-range summary covers one
// transaction's writes, not the whole keyspace.
const (
	defaultBloomBits = 1 << 16 // 8 KiB
	defaultHashCount = 4
)

// Summary is the concrete, mutable touched-range summary a transaction
// accumulates as it writes (spec.md §3.4 "a log of touched key ranges").
// Once built it satisfies types.TouchedRangeSummary for history-ring use.
type Summary struct {
	bits       []uint64 // bloom filter bit set, 64 bits per word
	numBits    int
	hashCount  int
	uniqueKeys []types.Key
	seen       map[types.Key]bool // de-dupes UniqueKeys
}

// NewSummary creates an empty summary sized for default parameters.
func NewSummary() *Summary {
	return &Summary{
		bits:      make([]uint64, defaultBloomBits/64),
		numBits:   defaultBloomBits,
		hashCount: defaultHashCount,
		seen:      make(map[types.Key]bool),
	}
}

// TouchWrite records a plain write to k (neither unique-constraint nor
// read-dependency), setting its bloom bits.
func (s *Summary) TouchWrite(k types.Key) {
	s.setBits(k)
}

// TouchRead records a read-and-depends-on of k — e.g. a list insertion
// reading its ordering neighbors (spec.md §4.3.3). Treated identically to
// a write for bloom purposes: both make the key "touched".
func (s *Summary) TouchRead(k types.Key) {
	s.setBits(k)
}

// TouchUnique records an ordered-unique-list insert of k, spec.md §4.3.3's
// "hard conflict" trigger. Unique keys are tracked exactly (no false
// positives), since a hard conflict must never be missed.
func (s *Summary) TouchUnique(k types.Key) {
	s.setBits(k)
	if !s.seen[k] {
		s.seen[k] = true
		s.uniqueKeys = append(s.uniqueKeys, k)
	}
}

func (s *Summary) setBits(k types.Key) {
	b := k.Bytes()
	h1 := xxhash.Sum64(b[:])
	h2 := xxhash.Sum64(append(b[:], 0xAA)) // cheap second hash, per Kirsch-Mitzenmacher double hashing
	for i := 0; i < s.hashCount; i++ {
		idx := (h1 + uint64(i)*h2) % uint64(s.numBits)
		s.bits[idx/64] |= 1 << (idx % 64)
	}
}

// MightContain implements types.TouchedRangeSummary.
func (s *Summary) MightContain(k types.Key) bool {
	b := k.Bytes()
	h1 := xxhash.Sum64(b[:])
	h2 := xxhash.Sum64(append(b[:], 0xAA))
	for i := 0; i < s.hashCount; i++ {
		idx := (h1 + uint64(i)*h2) % uint64(s.numBits)
		if s.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// UniqueKeys implements types.TouchedRangeSummary.
func (s *Summary) UniqueKeys() []types.Key {
	out := make([]types.Key, len(s.uniqueKeys))
	copy(out, s.uniqueKeys)
	return out
}

// FillRatio reports the bloom filter's fraction of set bits, a rough
// estimate of the false-positive risk (diagnostic / test use).
func (s *Summary) FillRatio() float64 {
	var set int
	for _, w := range s.bits {
		set += popcount(w)
	}
	return float64(set) / float64(s.numBits)
}

func popcount(w uint64) int {
	n := 0
	for w != 0 {
		w &= w - 1
		n++
	}
	return n
}

// Bits returns the bloom filter's bit set as a little-endian byte slice,
// the form carried over the wire in wire.RootCommitRequest.TouchedBloom.
func (s *Summary) Bits() []byte {
	out := make([]byte, len(s.bits)*8)
	for i, w := range s.bits {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

// HashCount returns the number of hash functions used to build the bloom
// filter, the wire form's TouchedHashes field.
func (s *Summary) HashCount() uint8 {
	return uint8(s.hashCount)
}

// FromWire reconstructs a Summary from the bits/hashCount/uniqueKeys a
// commit request carries over the wire, for the root server's own
// conflict classification against history entries it has accumulated
// locally. The reconstructed summary is read-only in practice: nothing
// calls TouchWrite/TouchRead/TouchUnique on it again.
func FromWire(bits []byte, hashCount uint8, uniqueKeys []types.Key) *Summary {
	words := make([]uint64, len(bits)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(bits[i*8:])
	}
	seen := make(map[types.Key]bool, len(uniqueKeys))
	for _, k := range uniqueKeys {
		seen[k] = true
	}
	return &Summary{
		bits:       words,
		numBits:    len(words) * 64,
		hashCount:  int(hashCount),
		uniqueKeys: uniqueKeys,
		seen:       seen,
	}
}

// EstimatedFalsePositiveRate estimates p for k hash functions, m bits, n
// inserted elements, using the standard bloom-filter approximation.
// Exposed for tests and for the CLI's diagnostic output, not for any
// correctness decision (conflict classification never trusts an estimate
// where precision matters — see Classify).
func (s *Summary) EstimatedFalsePositiveRate(insertedElements int) float64 {
	if insertedElements == 0 {
		return 0
	}
	k := float64(s.hashCount)
	m := float64(s.numBits)
	n := float64(insertedElements)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
