package boltoracle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracle_AddAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.bolt")
	o, err := Open(path)
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Add("deadbeef"))
	require.NoError(t, o.AddBatch([]string{"cafef00d", "feedface"}))

	hit, err := o.QuickLookup(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = o.QuickLookup(context.Background(), "cafef00d")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = o.QuickLookup(context.Background(), "0000000000")
	require.NoError(t, err)
	assert.False(t, hit)

	n, err := o.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestOracle_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known.bolt")
	o, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, o.Add("abc123"))
	require.NoError(t, o.Close())

	o2, err := Open(path)
	require.NoError(t, err)
	defer o2.Close()

	hit, err := o2.QuickLookup(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, hit)
}
