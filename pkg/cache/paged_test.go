package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceOfSize(n int64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestPagedCacheReadAcrossPages(t *testing.T) {
	src := sourceOfSize(3 * DefaultPageSize)
	c := NewPagedCache(DefaultPageSize, 10)

	var loads int
	loader := func(offset, size int64) ([]byte, error) {
		loads++
		end := offset + size
		if end > int64(len(src)) {
			end = int64(len(src))
		}
		return src[offset:end], nil
	}

	got, err := c.Read(DefaultPageSize-10, 20, loader)
	require.NoError(t, err)
	assert.Equal(t, src[DefaultPageSize-10:DefaultPageSize+10], got)
	assert.Equal(t, 2, loads, "a read spanning two pages must load each page once")

	// Re-reading the same region should not trigger more loads.
	_, err = c.Read(DefaultPageSize-10, 20, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestPagedCacheInvalidate(t *testing.T) {
	src := sourceOfSize(2 * DefaultPageSize)
	c := NewPagedCache(DefaultPageSize, 10)
	loader := func(offset, size int64) ([]byte, error) {
		end := offset + size
		if end > int64(len(src)) {
			end = int64(len(src))
		}
		return src[offset:end], nil
	}
	_, err := c.Read(0, DefaultPageSize, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c.Invalidate(0, DefaultPageSize)
	assert.Equal(t, 0, c.Len())
}

func TestPagedCacheClearIfOver(t *testing.T) {
	src := sourceOfSize(5 * DefaultPageSize)
	c := NewPagedCache(DefaultPageSize, 100)
	loader := func(offset, size int64) ([]byte, error) {
		end := offset + size
		if end > int64(len(src)) {
			end = int64(len(src))
		}
		return src[offset:end], nil
	}
	for i := int64(0); i < 5; i++ {
		_, err := c.Read(i*DefaultPageSize, 1, loader)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, c.Len())

	c.ClearIfOver(2)
	assert.Equal(t, 2, c.Len())
}
