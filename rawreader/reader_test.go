package rawreader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestReader_SinglePart_ReadsAcrossWholeRange(t *testing.T) {
	path := writeTemp(t, "image.raw", []byte("0123456789"))
	h, err := New().Open(context.Background(), []string{path}, "raw", 512)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, int64(10), h.Size())
	data, err := h.Read(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)
}

func TestReader_SplitParts_ReadSpansBoundary(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "image.001")
	p2 := filepath.Join(dir, "image.002")
	require.NoError(t, os.WriteFile(p1, []byte("ABCDE"), 0o600))
	require.NoError(t, os.WriteFile(p2, []byte("FGHIJ"), 0o600))

	h, err := New().Open(context.Background(), []string{p1, p2}, "split-raw", 512)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, int64(10), h.Size())
	data, err := h.Read(context.Background(), 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("DEFG"), data)
}

func TestReader_OutOfBounds_Errors(t *testing.T) {
	path := writeTemp(t, "image.raw", []byte("short"))
	h, err := New().Open(context.Background(), []string{path}, "raw", 512)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Read(context.Background(), 0, 100)
	require.Error(t, err)
}
