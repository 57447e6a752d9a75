package walk

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/process"
)

// testFs is a tiny synthetic directory tree:
//
//	/ (meta 5, root)
//	├── a.txt (meta 10)
//	└── sub   (meta 20)
//	    └── b.txt (meta 30)
type testFs struct {
	dirs map[int64][]engine.DirEntry
	fsck map[int64]engine.FileStat
}

func newTestFs() *testFs {
	return &testFs{
		dirs: map[int64][]engine.DirEntry{
			5:  {{Name: "a.txt", MetaAddr: 10, ParentMetaAddr: 5}, {Name: "sub", MetaAddr: 20, ParentMetaAddr: 5}},
			20: {{Name: "b.txt", MetaAddr: 30, ParentMetaAddr: 20}},
		},
		fsck: map[int64]engine.FileStat{
			5:  {Type: engine.FileDirectory},
			10: {Type: engine.FileRegular},
			20: {Type: engine.FileDirectory},
			30: {Type: engine.FileRegular},
		},
	}
}

func (f *testFs) Type() engine.FsType        { return "FAKE" }
func (f *testFs) BlockSize() int             { return 512 }
func (f *testFs) BlockCount() int64          { return 100 }
func (f *testFs) RootInode() int64           { return 5 }
func (f *testFs) FirstInode() int64          { return 2 }
func (f *testFs) LastInode() int64           { return 100 }
func (f *testFs) IsFAT() bool                { return false }
func (f *testFs) DefaultAttrType() int       { return 128 }
func (f *testFs) OrphanDirMetaAddr() (int64, bool) { return 0, false }

func (f *testFs) OpenDir(ctx context.Context, metaAddr int64) ([]engine.DirEntry, error) {
	return f.dirs[metaAddr], nil
}
func (f *testFs) Attributes(ctx context.Context, metaAddr int64) ([]engine.Attribute, error) {
	return nil, nil
}
func (f *testFs) Stat(ctx context.Context, metaAddr int64) (engine.FileStat, error) {
	st, ok := f.fsck[metaAddr]
	if !ok {
		return engine.FileStat{}, engine.ErrNotFound
	}
	return st, nil
}
func (f *testFs) UnallocatedBlocks(ctx context.Context) ([]int64, error) { return nil, nil }
func (f *testFs) OpenAttributeContent(ctx context.Context, metaAddr int64, attrType, attrID int) (io.ReadCloser, error) {
	return nil, engine.ErrNotFound
}
func (f *testFs) Close() error { return nil }

type recordingDB struct {
	nextID   int64
	files    []*engine.File
	parentOf map[int64]int64
}

func newRecordingDB() *recordingDB { return &recordingDB{nextID: 1, parentOf: map[int64]int64{}} }

func (d *recordingDB) CreateSchema(ctx context.Context, v string) error       { return nil }
func (d *recordingDB) SchemaVersion(ctx context.Context) (int, error)         { return 1, nil }
func (d *recordingDB) Close() error                                           { return nil }
func (d *recordingDB) SavepointCreate(ctx context.Context, name string) error { return nil }
func (d *recordingDB) SavepointRelease(ctx context.Context, name string) error { return nil }
func (d *recordingDB) SavepointRevert(ctx context.Context, name string) error  { return nil }
func (d *recordingDB) InTransaction() bool                                    { return true }
func (d *recordingDB) AddObject(ctx context.Context, typ engine.ObjectType, parentID int64) (int64, error) {
	id := d.nextID
	d.nextID++
	return id, nil
}
func (d *recordingDB) AddImage(ctx context.Context, img *engine.Image) (int64, error) { panic("unused") }
func (d *recordingDB) AddImageName(ctx context.Context, imageID int64, path string, sequence int) error {
	panic("unused")
}
func (d *recordingDB) AddVolumeSystem(ctx context.Context, vs *engine.VolumeSystem) (int64, error) {
	panic("unused")
}
func (d *recordingDB) AddVolume(ctx context.Context, vol *engine.Volume) (int64, error) { panic("unused") }
func (d *recordingDB) AddFileSystem(ctx context.Context, fs *engine.FileSystem) (int64, error) {
	id := d.nextID
	d.nextID++
	return id, nil
}
func (d *recordingDB) AddFsFile(ctx context.Context, file *engine.File) (int64, error) {
	id := d.nextID
	d.nextID++
	file.ID = id
	d.files = append(d.files, file)
	return id, nil
}
func (d *recordingDB) AddVirtualDir(ctx context.Context, fsID int64, parentDirID int64, name string) (int64, error) {
	panic("unused")
}
func (d *recordingDB) AddUnallocParent(ctx context.Context, fsID int64) (int64, error) { panic("unused") }
func (d *recordingDB) AddUnallocBlockFile(ctx context.Context, parentID int64, fsID int64, hasFs bool, size int64, ranges []engine.LayoutRange) (int64, error) {
	panic("unused")
}
func (d *recordingDB) AddLayoutRange(ctx context.Context, r engine.LayoutRange) error { return nil }
func (d *recordingDB) GetFsInfos(ctx context.Context, imageID int64) ([]engine.FsInfo, error) {
	panic("unused")
}
func (d *recordingDB) GetVolumes(ctx context.Context, imageID int64) ([]engine.VolumeRowInfo, error) {
	panic("unused")
}
func (d *recordingDB) GetVolumeSystem(ctx context.Context, objectID int64) (engine.VolumeSystemInfo, error) {
	panic("unused")
}
func (d *recordingDB) GetObject(ctx context.Context, objectID int64) (engine.ObjectInfo, error) {
	panic("unused")
}
func (d *recordingDB) GetParentImage(ctx context.Context, objectID int64) (int64, error) {
	panic("unused")
}
func (d *recordingDB) GetFsRootDir(ctx context.Context, fsID int64) (engine.ObjectInfo, error) {
	panic("unused")
}
func (d *recordingDB) ResolveParent(ctx context.Context, fsID int64, metaAddr int64) (int64, error) {
	id, ok := d.parentOf[metaAddr]
	if !ok {
		return 0, engine.ErrNotFound
	}
	return id, nil
}

func TestFsWalker_WalkRoot_VisitsWholeTree(t *testing.T) {
	db := newRecordingDB()
	proc := process.New(db, &engine.ErrorList{}, engine.NewMetrics(nil), process.Options{}, nil, nil)
	w := NewFsWalker(proc, DefaultTraversal, nil)

	fs := newTestFs()
	err := w.WalkRoot(context.Background(), 1, 0, fs, 100, 999)
	require.Nil(t, err)

	names := map[string]bool{}
	for _, f := range db.files {
		names[f.Name] = true
	}
	assert.True(t, names["a.txt"])
	assert.True(t, names["sub"])
	assert.True(t, names["b.txt"])
	assert.Len(t, db.files, 4) // root + a.txt + sub + b.txt
}

func TestFsWalker_CancelStopsWalk(t *testing.T) {
	db := newRecordingDB()
	proc := process.New(db, &engine.ErrorList{}, engine.NewMetrics(nil), process.Options{}, nil, nil)
	cancelled := true
	w := NewFsWalker(proc, DefaultTraversal, func() bool { return cancelled })

	fs := newTestFs()
	err := w.WalkRoot(context.Background(), 1, 0, fs, 100, 999)
	require.NotNil(t, err)
	assert.Equal(t, engine.KindCancelled, err.Kind)
}
