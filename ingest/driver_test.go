package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

type fakeImageReader struct{ size int64 }

func (r fakeImageReader) Open(ctx context.Context, parts []string, imageType engine.ImageType, sectorSize int) (engine.ImageHandle, error) {
	return &fakeImageHandle{size: r.size}, nil
}

type fakeImageHandle struct{ size int64 }

func (h *fakeImageHandle) Read(ctx context.Context, byteOffset int64, length int) ([]byte, error) {
	return make([]byte, length), nil
}
func (h *fakeImageHandle) Size() int64  { return h.size }
func (h *fakeImageHandle) Close() error { return nil }

// stubDB is a minimal DbFacade exercising only the ingest-level surface
// (savepoints, image rows); per-fs/per-file behavior is covered in the
// process and walk package tests.
type stubDB struct {
	nextID          int64
	savepointOpen   bool
	savepointEvents []string
}

func (d *stubDB) CreateSchema(ctx context.Context, v string) error { return nil }
func (d *stubDB) SchemaVersion(ctx context.Context) (int, error)   { return 1, nil }
func (d *stubDB) Close() error                                    { return nil }
func (d *stubDB) SavepointCreate(ctx context.Context, name string) error {
	d.savepointOpen = true
	d.savepointEvents = append(d.savepointEvents, "create:"+name)
	return nil
}
func (d *stubDB) SavepointRelease(ctx context.Context, name string) error {
	d.savepointOpen = false
	d.savepointEvents = append(d.savepointEvents, "release:"+name)
	return nil
}
func (d *stubDB) SavepointRevert(ctx context.Context, name string) error {
	d.savepointOpen = false
	d.savepointEvents = append(d.savepointEvents, "revert:"+name)
	return nil
}
func (d *stubDB) InTransaction() bool { return d.savepointOpen }
func (d *stubDB) AddObject(ctx context.Context, typ engine.ObjectType, parentID int64) (int64, error) {
	d.nextID++
	return d.nextID, nil
}
func (d *stubDB) AddImage(ctx context.Context, img *engine.Image) (int64, error) {
	d.nextID++
	return d.nextID, nil
}
func (d *stubDB) AddImageName(ctx context.Context, imageID int64, path string, sequence int) error {
	return nil
}
func (d *stubDB) AddVolumeSystem(ctx context.Context, vs *engine.VolumeSystem) (int64, error) {
	return 0, engine.ErrNotFound
}
func (d *stubDB) AddVolume(ctx context.Context, vol *engine.Volume) (int64, error) { panic("unused") }
func (d *stubDB) AddFileSystem(ctx context.Context, fs *engine.FileSystem) (int64, error) {
	panic("unused")
}
func (d *stubDB) AddFsFile(ctx context.Context, file *engine.File) (int64, error) { panic("unused") }
func (d *stubDB) AddVirtualDir(ctx context.Context, fsID int64, parentDirID int64, name string) (int64, error) {
	panic("unused")
}
func (d *stubDB) AddUnallocParent(ctx context.Context, fsID int64) (int64, error) { panic("unused") }
func (d *stubDB) AddUnallocBlockFile(ctx context.Context, parentID int64, fsID int64, hasFs bool, size int64, ranges []engine.LayoutRange) (int64, error) {
	panic("unused")
}
func (d *stubDB) AddLayoutRange(ctx context.Context, r engine.LayoutRange) error { panic("unused") }
func (d *stubDB) GetFsInfos(ctx context.Context, imageID int64) ([]engine.FsInfo, error) {
	return nil, nil
}
func (d *stubDB) GetVolumes(ctx context.Context, imageID int64) ([]engine.VolumeRowInfo, error) {
	return nil, nil
}
func (d *stubDB) GetVolumeSystem(ctx context.Context, objectID int64) (engine.VolumeSystemInfo, error) {
	panic("unused")
}
func (d *stubDB) GetObject(ctx context.Context, objectID int64) (engine.ObjectInfo, error) {
	panic("unused")
}
func (d *stubDB) GetParentImage(ctx context.Context, objectID int64) (int64, error) {
	panic("unused")
}
func (d *stubDB) GetFsRootDir(ctx context.Context, fsID int64) (engine.ObjectInfo, error) {
	panic("unused")
}
func (d *stubDB) ResolveParent(ctx context.Context, fsID int64, metaAddr int64) (int64, error) {
	return 0, engine.ErrNotFound
}

func TestDriver_StartWithNoFileSystems_CommitsOk(t *testing.T) {
	db := &stubDB{}
	drv := New(db, fakeImageReader{size: 4096}, nil, stubFsReader{}, nil, nil, engine.NewMetrics(nil))
	drv.Configure(Options{AddFileSystems: false})

	status, err := drv.Start(context.Background(), []string{"image.raw"}, "raw", 512)
	require.Nil(t, err)
	assert.Equal(t, StatusOk, status)
	assert.True(t, db.savepointOpen)

	imgID, cerr := drv.Commit(context.Background())
	require.Nil(t, cerr)
	assert.NotZero(t, imgID)
	assert.False(t, db.savepointOpen)
}

func TestDriver_ImageWriterPath_WritesCacheCopy(t *testing.T) {
	db := &stubDB{}
	drv := New(db, fakeImageReader{size: 4096}, nil, stubFsReader{}, nil, nil, engine.NewMetrics(nil))
	cachePath := filepath.Join(t.TempDir(), "image.cache")
	drv.Configure(Options{AddFileSystems: false, ImageWriterPath: cachePath})

	status, err := drv.Start(context.Background(), []string{"image.raw"}, "raw", 512)
	require.Nil(t, err)
	assert.Equal(t, StatusOk, status)

	require.Nil(t, drv.Close(context.Background()))

	info, statErr := os.Stat(cachePath)
	require.NoError(t, statErr)
	assert.NotNil(t, info)
}

func TestDriver_SecondStartBeforeCommit_Rejected(t *testing.T) {
	db := &stubDB{}
	drv := New(db, fakeImageReader{size: 4096}, nil, stubFsReader{}, nil, nil, engine.NewMetrics(nil))
	drv.Configure(Options{AddFileSystems: false})

	_, err := drv.Start(context.Background(), []string{"image.raw"}, "raw", 512)
	require.Nil(t, err)

	status, err := drv.Start(context.Background(), []string{"image.raw"}, "raw", 512)
	require.NotNil(t, err)
	assert.Equal(t, StatusCriticalError, status)
}

type stubFsReader struct{}

func (stubFsReader) OpenFileSystem(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
	return nil, engine.ErrNotFound
}
