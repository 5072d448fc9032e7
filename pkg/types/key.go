package types

import (
	"encoding/binary"
	"fmt"
)

// secondaryMask keeps Key.Secondary to the 48 bits spec.md §3.2 allots it;
// the top 16 bits of the field are always zero.
const secondaryMask = uint64(1)<<48 - 1

// Key is the structured 128-bit key of spec.md §3.2: (type: 16 bits,
// secondary: 48 bits, primary: 64 bits). The engine is oblivious to what
// Type/Secondary/Primary mean; schema layers (out of scope here) encode
// table/column/row references into this space.
type Key struct {
	Type      uint16
	Secondary uint64 // low 48 bits significant
	Primary   uint64
}

// NewKey constructs a Key, masking Secondary to 48 bits.
func NewKey(typ uint16, secondary, primary uint64) Key {
	return Key{Type: typ, Secondary: secondary & secondaryMask, Primary: primary}
}

// Compare orders keys lexicographically on the full 128 bits: Type, then
// Secondary, then Primary (spec.md §3.2).
func (k Key) Compare(other Key) int {
	if k.Type != other.Type {
		if k.Type < other.Type {
			return -1
		}
		return 1
	}
	ks, os := k.Secondary&secondaryMask, other.Secondary&secondaryMask
	if ks != os {
		if ks < os {
			return -1
		}
		return 1
	}
	switch {
	case k.Primary < other.Primary:
		return -1
	case k.Primary > other.Primary:
		return 1
	default:
		return 0
	}
}

// Less reports k < other under Compare's order.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// Bytes packs the key into its 16-byte big-endian wire form: 2 bytes type,
// 6 bytes secondary, 8 bytes primary.
func (k Key) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint16(b[0:2], k.Type)
	var sec [8]byte
	binary.BigEndian.PutUint64(sec[:], k.Secondary&secondaryMask)
	copy(b[2:8], sec[2:8])
	binary.BigEndian.PutUint64(b[8:16], k.Primary)
	return b
}

// KeyFromBytes parses the wire form produced by Bytes.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != 16 {
		return Key{}, fmt.Errorf("key must be 16 bytes, got %d", len(b))
	}
	var sec [8]byte
	copy(sec[2:8], b[2:8])
	return Key{
		Type:      binary.BigEndian.Uint16(b[0:2]),
		Secondary: binary.BigEndian.Uint64(sec[:]),
		Primary:   binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%04x:%012x:%016x", k.Type, k.Secondary&secondaryMask, k.Primary)
}

// MinKey and MaxKey bound the full key space; a branch's first entry's
// LeftKeyBound is conventionally MinKey.
var (
	MinKey = Key{Type: 0, Secondary: 0, Primary: 0}
	MaxKey = Key{Type: 0xFFFF, Secondary: secondaryMask, Primary: ^uint64(0)}
)

// KeyRange is an inclusive-lower, exclusive-upper span of the key space,
// used by touched-range summaries (spec.md §4.3.3) and by index cursors
// (spec.md §4.4.8).
type KeyRange struct {
	Start Key // inclusive
	End   Key // exclusive; Start == End means a single-key range is handled
	// by callers as [Start, Start] inclusive — KeyRange itself only
	// expresses half-open spans wider than one key.
}

// Contains reports whether k falls in [r.Start, r.End).
func (r KeyRange) Contains(k Key) bool {
	return !k.Less(r.Start) && k.Less(r.End)
}

// Overlaps reports whether r and other share any key.
func (r KeyRange) Overlaps(other KeyRange) bool {
	return r.Start.Less(other.End) && other.Start.Less(r.End)
}
