package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Key
		expected int
	}{
		{
			name:     "equal",
			a:        NewKey(1, 2, 3),
			b:        NewKey(1, 2, 3),
			expected: 0,
		},
		{
			name:     "type differs",
			a:        NewKey(1, 0, 0),
			b:        NewKey(2, 0, 0),
			expected: -1,
		},
		{
			name:     "secondary differs",
			a:        NewKey(1, 5, 0),
			b:        NewKey(1, 6, 0),
			expected: -1,
		},
		{
			name:     "primary differs",
			a:        NewKey(1, 5, 100),
			b:        NewKey(1, 5, 50),
			expected: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.expected, tt.b.Compare(tt.a))
		})
	}
}

func TestKeySecondaryMasked(t *testing.T) {
	k := NewKey(0, 0xFFFFFFFFFFFFFFFF, 0)
	assert.Equal(t, secondaryMask, k.Secondary)
}

func TestKeyBytesRoundTrip(t *testing.T) {
	k := NewKey(0xABCD, 0x1122334455, 0x0102030405060708)
	b := k.Bytes()
	got, err := KeyFromBytes(b[:])
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestKeyFromBytesWrongLength(t *testing.T) {
	_, err := KeyFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestKeyRangeContainsAndOverlaps(t *testing.T) {
	r := KeyRange{Start: NewKey(0, 0, 10), End: NewKey(0, 0, 20)}
	assert.True(t, r.Contains(NewKey(0, 0, 10)))
	assert.True(t, r.Contains(NewKey(0, 0, 19)))
	assert.False(t, r.Contains(NewKey(0, 0, 20)))
	assert.False(t, r.Contains(NewKey(0, 0, 9)))

	other := KeyRange{Start: NewKey(0, 0, 15), End: NewKey(0, 0, 25)}
	assert.True(t, r.Overlaps(other))

	disjoint := KeyRange{Start: NewKey(0, 0, 20), End: NewKey(0, 0, 30)}
	assert.False(t, r.Overlaps(disjoint))
}
