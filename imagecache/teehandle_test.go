package imagecache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

type fakeHandle struct {
	data []byte
}

func (h *fakeHandle) Read(ctx context.Context, byteOffset int64, length int) ([]byte, error) {
	return h.data[byteOffset : byteOffset+int64(length)], nil
}
func (h *fakeHandle) Size() int64  { return int64(len(h.data)) }
func (h *fakeHandle) Close() error { return nil }

func TestTeeHandle_Read_WritesCacheAtSameOffset(t *testing.T) {
	inner := &fakeHandle{data: []byte("0123456789abcdef")}
	path := filepath.Join(t.TempDir(), "cache.img")

	wrapped, err := Wrap(inner, path)
	require.Nil(t, err)

	got, rerr := wrapped.Read(context.Background(), 4, 6)
	require.NoError(t, rerr)
	assert.Equal(t, []byte("456789"), got)

	require.NoError(t, wrapped.Close())

	on, statErr := os.ReadFile(path)
	require.NoError(t, statErr)
	assert.True(t, bytes.Equal(on[4:10], []byte("456789")))
}

func TestTeeHandle_Wrap_InvalidPath_ReturnsError(t *testing.T) {
	inner := &fakeHandle{data: []byte("x")}
	_, err := Wrap(inner, filepath.Join("/nonexistent-dir", "cache.img"))
	require.NotNil(t, err)
	assert.Equal(t, engine.KindReadIO, err.Kind)
}
