package tskcmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/errorlog"
)

func TestErrorLogPath_AppendsSuffix(t *testing.T) {
	assert.Equal(t, "/tmp/case.db.errors.bolt", errorLogPath("/tmp/case.db"))
}

func TestRunErrors_NoRecordedErrors_PrintsMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.db")
	store, err := errorlog.Open(errorLogPath(path))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, runErrors(path, 7))
}

func TestRunErrors_RecordedErrors_Prints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.db")
	store, err := errorlog.Open(errorLogPath(path))
	require.NoError(t, err)
	require.NoError(t, store.Save(3, []*engine.Error{engine.NewError(engine.KindReadIO, "short read")}))
	require.NoError(t, store.Close())

	require.NoError(t, runErrors(path, 3))
}
