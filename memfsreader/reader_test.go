package memfsreader

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

func TestHandle_OpenDir_ListsChildrenWithDotEntries(t *testing.T) {
	h := NewBuilder("ext4", 2).
		AddDir(2, 20, "sub").
		AddFile(2, 10, "a.txt", []byte("hello")).
		AddFile(20, 30, "b.txt", []byte("world")).
		Build()

	entries, err := h.OpenDir(context.Background(), 2)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "sub")
	assert.NotContains(t, names, "b.txt")
}

func TestHandle_OpenAttributeContent_StreamsFileBytes(t *testing.T) {
	h := NewBuilder("ext4", 2).
		AddFile(2, 10, "a.txt", []byte("hello world")).
		Build()

	rc, err := h.OpenAttributeContent(context.Background(), 10, h.DefaultAttrType(), 0)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestHandle_Stat_ReturnsSize(t *testing.T) {
	h := NewBuilder("ext4", 2).
		AddFile(2, 10, "a.txt", []byte("12345")).
		Build()

	stat, err := h.Stat(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stat.Size)
	assert.Equal(t, engine.FileRegular, stat.Type)
}
