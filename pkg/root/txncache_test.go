package root

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTxnCacheGetMiss(t *testing.T) {
	c := newTxnCache(1024)
	_, ok := c.Get(rootID(1))
	assert.False(t, ok)
}

func TestTxnCachePutThenGet(t *testing.T) {
	c := newTxnCache(1024)
	c.Put(rootID(1), []byte("hello"))
	data, ok := c.Get(rootID(1))
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestTxnCacheKeepsFirstPutOnDuplicate(t *testing.T) {
	c := newTxnCache(1024)
	c.Put(rootID(1), []byte("first"))
	c.Put(rootID(1), []byte("second"))
	data, _ := c.Get(rootID(1))
	assert.Equal(t, []byte("first"), data)
}

func TestTxnCacheEvictsOverBudget(t *testing.T) {
	c := newTxnCache(10)
	c.Put(rootID(1), []byte("0123456789"))
	c.Put(rootID(2), []byte("abcdefghij"))

	_, ok := c.Get(rootID(1))
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(rootID(2))
	assert.True(t, ok)
	assert.LessOrEqual(t, c.Bytes(), int64(10))
}

func TestTxnCacheDefaultBudgetOnZero(t *testing.T) {
	c := newTxnCache(0)
	assert.Equal(t, int64(defaultRootTxnCache), c.maxBytes)
}
