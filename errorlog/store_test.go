package errorlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

func TestStore_SaveAndLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.errors.bolt")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	errs := []*engine.Error{
		engine.NewError(engine.KindReadIO, "short read").WithContext("sector 12"),
		engine.NewError(engine.KindUnicode, "invalid FILENAME attribute"),
	}
	require.NoError(t, store.Save(42, errs))

	lines, err := store.Load(42)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "short read")
	assert.Contains(t, lines[0], "sector 12")
	assert.Contains(t, lines[1], "invalid FILENAME attribute")
}

func TestStore_Load_UnknownImage_ReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.errors.bolt")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	lines, err := store.Load(999)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestStore_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.errors.bolt")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(1, []*engine.Error{engine.NewError(engine.KindCorruptFs, "bad superblock")}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	lines, err := reopened.Load(1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "bad superblock")
}
