package casemgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

type memBackend struct {
	schemaVersion int
	created       bool
	closed        bool
}

func (b *memBackend) CreateSchema(ctx context.Context, engineVersion string) error {
	b.created = true
	b.schemaVersion = currentSchemaVersion
	return nil
}
func (b *memBackend) SchemaVersion(ctx context.Context) (int, error) { return b.schemaVersion, nil }
func (b *memBackend) Close() error                                  { b.closed = true; return nil }
func (b *memBackend) SavepointCreate(ctx context.Context, name string) error  { return nil }
func (b *memBackend) SavepointRelease(ctx context.Context, name string) error { return nil }
func (b *memBackend) SavepointRevert(ctx context.Context, name string) error  { return nil }
func (b *memBackend) InTransaction() bool                                    { return false }
func (b *memBackend) AddObject(ctx context.Context, typ engine.ObjectType, parentID int64) (int64, error) {
	return 1, nil
}
func (b *memBackend) AddImage(ctx context.Context, img *engine.Image) (int64, error) { return 1, nil }
func (b *memBackend) AddImageName(ctx context.Context, imageID int64, path string, sequence int) error {
	return nil
}
func (b *memBackend) AddVolumeSystem(ctx context.Context, vs *engine.VolumeSystem) (int64, error) {
	return 0, nil
}
func (b *memBackend) AddVolume(ctx context.Context, vol *engine.Volume) (int64, error) { return 0, nil }
func (b *memBackend) AddFileSystem(ctx context.Context, fs *engine.FileSystem) (int64, error) {
	return 0, nil
}
func (b *memBackend) AddFsFile(ctx context.Context, file *engine.File) (int64, error) { return 0, nil }
func (b *memBackend) AddVirtualDir(ctx context.Context, fsID int64, parentDirID int64, name string) (int64, error) {
	return 0, nil
}
func (b *memBackend) AddUnallocParent(ctx context.Context, fsID int64) (int64, error) { return 0, nil }
func (b *memBackend) AddUnallocBlockFile(ctx context.Context, parentID int64, fsID int64, hasFs bool, size int64, ranges []engine.LayoutRange) (int64, error) {
	return 0, nil
}
func (b *memBackend) AddLayoutRange(ctx context.Context, r engine.LayoutRange) error { return nil }
func (b *memBackend) GetFsInfos(ctx context.Context, imageID int64) ([]engine.FsInfo, error) {
	return nil, nil
}
func (b *memBackend) GetVolumes(ctx context.Context, imageID int64) ([]engine.VolumeRowInfo, error) {
	return nil, nil
}
func (b *memBackend) GetVolumeSystem(ctx context.Context, objectID int64) (engine.VolumeSystemInfo, error) {
	return engine.VolumeSystemInfo{}, nil
}
func (b *memBackend) GetObject(ctx context.Context, objectID int64) (engine.ObjectInfo, error) {
	return engine.ObjectInfo{}, nil
}
func (b *memBackend) GetParentImage(ctx context.Context, objectID int64) (int64, error) { return 0, nil }
func (b *memBackend) GetFsRootDir(ctx context.Context, fsID int64) (engine.ObjectInfo, error) {
	return engine.ObjectInfo{}, nil
}
func (b *memBackend) ResolveParent(ctx context.Context, fsID int64, metaAddr int64) (int64, error) {
	return 0, nil
}

func registerMemBackend(t *testing.T, name string, backend *memBackend) {
	t.Helper()
	// engine.RegisterBackend panics on duplicate names, so each test
	// uses a name unique to itself.
	engine.RegisterBackend(name, func(ctx context.Context, opt engine.OpenOptions, create bool) (engine.DbFacade, error) {
		return backend, nil
	})
}

func TestManager_NewCase_CreatesSchema(t *testing.T) {
	backend := &memBackend{}
	registerMemBackend(t, "mem-newcase", backend)

	m := New(nil, nil, nil, engine.NewMetrics(nil))
	c, err := m.NewCase(context.Background(), engine.OpenOptions{Location: "/tmp/case.db"}, "mem-newcase")
	require.Nil(t, err)
	assert.True(t, backend.created)
	require.NotNil(t, c)
}

func TestManager_OpenCase_RejectsSchemaMismatch(t *testing.T) {
	backend := &memBackend{schemaVersion: 99}
	registerMemBackend(t, "mem-mismatch", backend)

	m := New(nil, nil, nil, engine.NewMetrics(nil))
	_, err := m.OpenCase(context.Background(), engine.OpenOptions{Location: "/tmp/case.db"}, "mem-mismatch")
	require.NotNil(t, err)
	assert.Equal(t, engine.KindSchemaMismatch, err.Kind)
	assert.True(t, backend.closed)
}

func TestCase_AttachDetachKnownFiles(t *testing.T) {
	backend := &memBackend{}
	registerMemBackend(t, "mem-oracle", backend)

	m := New(nil, nil, nil, engine.NewMetrics(nil))
	c, err := m.NewCase(context.Background(), engine.OpenOptions{Location: "/tmp/case2.db"}, "mem-oracle")
	require.Nil(t, err)

	oracle := &fakeOracle{}
	c.AttachKnownFiles(oracle)
	assert.NotNil(t, c.knownGood)
	require.NoError(t, c.DetachKnownFiles())
	assert.Nil(t, c.knownGood)
	assert.True(t, oracle.closed)
}

type fakeOracle struct{ closed bool }

func (o *fakeOracle) QuickLookup(ctx context.Context, hashHex string) (bool, error) { return false, nil }
func (o *fakeOracle) Close() error                                                  { o.closed = true; return nil }
