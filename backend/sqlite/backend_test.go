package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dbi, err := open(context.Background(), engine.OpenOptions{Location: ":memory:"}, true)
	require.NoError(t, err)
	b := dbi.(*Backend)
	require.NoError(t, b.CreateSchema(context.Background(), "1.0.0-test"))
	return b
}

func TestBackend_CreateSchema_RejectsSecondCall(t *testing.T) {
	b := newTestBackend(t)
	err := b.CreateSchema(context.Background(), "1.0.0-test")
	require.Error(t, err)
}

func TestBackend_SavepointLifecycle_Commits(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SavepointCreate(ctx, "ADDIMAGE"))
	assert.True(t, b.InTransaction())

	imgID, err := b.AddImage(ctx, &engine.Image{Type: "raw", SectorSize: 512, Size: 1 << 20, Parts: []string{"a.raw"}})
	require.NoError(t, err)
	assert.NotZero(t, imgID)

	require.NoError(t, b.SavepointRelease(ctx, "ADDIMAGE"))
	assert.False(t, b.InTransaction())

	version, err := b.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestBackend_SavepointRevert_DiscardsImage(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SavepointCreate(ctx, "ADDIMAGE"))
	imgID, err := b.AddImage(ctx, &engine.Image{Type: "raw", SectorSize: 512, Size: 4096})
	require.NoError(t, err)

	require.NoError(t, b.SavepointRevert(ctx, "ADDIMAGE"))
	assert.False(t, b.InTransaction())

	_, getErr := b.GetObject(ctx, imgID)
	require.Error(t, getErr)
	assert.True(t, engine.NewError(engine.KindNotFound, "").Is(getErr))
}

func TestBackend_AddFsFile_ResolveParentRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	imgID, err := b.AddImage(ctx, &engine.Image{Type: "raw", SectorSize: 512, Size: 4096})
	require.NoError(t, err)

	fsID, err := b.AddFileSystem(ctx, &engine.FileSystem{
		ParentID: imgID, ImageID: imgID, Type: "ext4", BlockSize: 4096, BlockCount: 1, RootInode: 2,
	})
	require.NoError(t, err)

	rootID, err := b.AddFsFile(ctx, &engine.File{
		ParentID: fsID, FsID: fsID, HasFs: true, Name: "", MetaAddr: 2,
		Type: engine.FileDirectory, ParentPath: "/", HasPath: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, rootID)

	resolved, err := b.ResolveParent(ctx, fsID, 2)
	require.NoError(t, err)
	assert.Equal(t, rootID, resolved)

	root, err := b.GetFsRootDir(ctx, fsID)
	require.NoError(t, err)
	assert.Equal(t, rootID, root.ID)
}
