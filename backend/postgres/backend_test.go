package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tskcat/engine/engine"
)

// These tests need a live Postgres instance; they are skipped unless
// TSKCAT_TEST_PG_DBNAME names its database. TSKCAT_TEST_PG_HOST,
// TSKCAT_TEST_PG_USER and TSKCAT_TEST_PG_PASSWORD are optional and fill
// the rest of the OpenOptions the DSN is built from.
func testOptions(t *testing.T) (engine.OpenOptions, bool) {
	dbname := os.Getenv("TSKCAT_TEST_PG_DBNAME")
	if dbname == "" {
		t.Skip("TSKCAT_TEST_PG_DBNAME not set, skipping postgres integration test")
	}
	return engine.OpenOptions{
		Host:     os.Getenv("TSKCAT_TEST_PG_HOST"),
		User:     os.Getenv("TSKCAT_TEST_PG_USER"),
		Password: os.Getenv("TSKCAT_TEST_PG_PASSWORD"),
		DBName:   dbname,
	}, true
}

func TestBackend_CreateSchemaAndSavepointRoundTrip(t *testing.T) {
	opt, ok := testOptions(t)
	if !ok {
		return
	}
	ctx := context.Background()
	dbi, err := open(ctx, opt, true)
	require.NoError(t, err)
	b := dbi.(*Backend)
	defer b.Close()

	require.NoError(t, b.CreateSchema(ctx, "1.0.0-test"))

	require.NoError(t, b.SavepointCreate(ctx, "ADDIMAGE"))
	imgID, err := b.AddImage(ctx, &engine.Image{Type: "raw", SectorSize: 512, Size: 4096})
	require.NoError(t, err)
	require.NotZero(t, imgID)
	require.NoError(t, b.SavepointRelease(ctx, "ADDIMAGE"))

	version, err := b.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, version)
}
