package walk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/process"
)

type noopImageHandle struct{}

func (noopImageHandle) Read(ctx context.Context, byteOffset int64, length int) ([]byte, error) {
	return make([]byte, length), nil
}
func (noopImageHandle) Size() int64  { return 1 << 20 }
func (noopImageHandle) Close() error { return nil }

// fsReaderFunc adapts a function to engine.FileSystemReader, the same
// way net/http.HandlerFunc adapts a function to http.Handler.
type fsReaderFunc func(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error)

func (f fsReaderFunc) OpenFileSystem(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
	return f(ctx, img, byteOffset)
}

func newProcessorFactory(db engine.DbFacade) func() *process.Processor {
	return func() *process.Processor {
		return process.New(db, &engine.ErrorList{}, engine.NewMetrics(nil), process.Options{}, nil, nil)
	}
}

func TestImageWalker_NoVolumeSystem_WalksFsAtOffsetZero(t *testing.T) {
	db := newRecordingDB()
	fs := newTestFs()
	opened := false
	fsReader := fsReaderFunc(func(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
		opened = true
		assert.Equal(t, int64(0), byteOffset)
		return fs, nil
	})

	w := New(db, nil, fsReader, &engine.ErrorList{}, engine.NewMetrics(nil), engine.DefaultVolumeFilter, newProcessorFactory(db))
	err := w.Walk(context.Background(), noopImageHandle{}, 1, 1)
	require.Nil(t, err)
	assert.True(t, opened)
	assert.NotEmpty(t, db.files)
}

func TestImageWalker_FileSystemOpenFailure_IsNonFatal(t *testing.T) {
	db := newRecordingDB()
	fsReader := fsReaderFunc(func(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
		return nil, engine.ErrUnsupported
	})

	errs := &engine.ErrorList{}
	w := New(db, nil, fsReader, errs, engine.NewMetrics(nil), engine.DefaultVolumeFilter, newProcessorFactory(db))
	err := w.Walk(context.Background(), noopImageHandle{}, 1, 1)
	require.Nil(t, err)
	assert.Empty(t, db.files)
	require.Len(t, errs.Snapshot(), 1)
	assert.Equal(t, engine.KindCorruptFs, errs.Snapshot()[0].Kind)
}

func TestImageWalker_Cancelled_StopsImmediately(t *testing.T) {
	db := newRecordingDB()
	fsReader := fsReaderFunc(func(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
		t.Fatal("should not attempt to open a file system once cancelled")
		return nil, nil
	})

	w := New(db, nil, fsReader, &engine.ErrorList{}, engine.NewMetrics(nil), engine.DefaultVolumeFilter, newProcessorFactory(db))
	w.Cancelled = func() bool { return true }
	err := w.Walk(context.Background(), noopImageHandle{}, 1, 1)
	require.NotNil(t, err)
	assert.Equal(t, engine.KindCancelled, err.Kind)
}
