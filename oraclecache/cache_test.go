package oraclecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOracle struct {
	lookups int
	known   map[string]bool
	closed  bool
}

func (o *countingOracle) QuickLookup(ctx context.Context, hashHex string) (bool, error) {
	o.lookups++
	return o.known[hashHex], nil
}
func (o *countingOracle) Close() error { o.closed = true; return nil }

func TestCached_QuickLookup_MemoizesRepeatQueries(t *testing.T) {
	inner := &countingOracle{known: map[string]bool{"abc": true}}
	c := New(inner, time.Minute)

	hit, err := c.QuickLookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = c.QuickLookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, inner.lookups)

	hit, err = c.QuickLookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, hit)
	hit, err = c.QuickLookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, inner.lookups)
}

func TestCached_Close_ClosesInner(t *testing.T) {
	inner := &countingOracle{known: map[string]bool{}}
	c := New(inner, 0)
	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}
