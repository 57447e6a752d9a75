// Package casemgr implements CaseManager: opening or creating a case's
// persistence target, attaching known-file oracles, and handing out a
// configured IngestDriver per image (spec.md §4.1).
package casemgr

import (
	"context"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
	"github.com/tskcat/engine/ingest"
)

// EngineVersion is stamped into the db_info row on schema creation
// (spec.md §4.1 "Schema creation").
const EngineVersion = "1.0.0"

// Case is an opened case: its backend, oracles, and the capability set
// every IngestDriver it hands out will be bound to.
type Case struct {
	DB          engine.DbFacade
	ImageReader engine.ImageReader
	VsReader    engine.VolumeSystemReader
	FsReader    engine.FileSystemReader
	Metrics     *engine.Metrics

	knownGood engine.KnownFileOracle
	knownBad  engine.KnownFileOracle
}

// Manager is CaseManager.
type Manager struct {
	ImageReader engine.ImageReader
	VsReader    engine.VolumeSystemReader
	FsReader    engine.FileSystemReader
	Metrics     *engine.Metrics
}

// New builds a Manager bound to the external capabilities every case it
// opens will use.
func New(imgReader engine.ImageReader, vsReader engine.VolumeSystemReader, fsReader engine.FileSystemReader, metrics *engine.Metrics) *Manager {
	return &Manager{ImageReader: imgReader, VsReader: vsReader, FsReader: fsReader, Metrics: metrics}
}

// NewCase creates a case's persistence target (spec.md §4.1
// "new_case(location)"). It is an error if a database already exists
// there; the concrete backend enforces this at CreateSchema time.
func (m *Manager) NewCase(ctx context.Context, opt engine.OpenOptions, backend string) (*Case, *engine.Error) {
	db, err := engine.OpenBackend(ctx, backend, opt, true)
	if err != nil {
		if e, ok := err.(*engine.Error); ok {
			return nil, e
		}
		return nil, engine.Wrap(engine.KindReadIO, "backend open failed", err)
	}
	if err := db.CreateSchema(ctx, EngineVersion); err != nil {
		db.Close()
		return nil, engine.Wrap(engine.KindSchemaMismatch, "schema creation failed", err)
	}
	enginelog.Infof(opt.Location, "case created (backend=%s)", backend)
	return m.wrap(db), nil
}

// OpenCase opens an existing case (spec.md §4.1 "open_case(location)").
// A schema-version mismatch is fatal.
func (m *Manager) OpenCase(ctx context.Context, opt engine.OpenOptions, backend string) (*Case, *engine.Error) {
	db, err := engine.OpenBackend(ctx, backend, opt, false)
	if err != nil {
		if e, ok := err.(*engine.Error); ok {
			return nil, e
		}
		return nil, engine.Wrap(engine.KindReadIO, "backend open failed", err)
	}
	version, verr := db.SchemaVersion(ctx)
	if verr != nil {
		db.Close()
		return nil, engine.Wrap(engine.KindSchemaMismatch, "schema version read failed", verr)
	}
	if version != currentSchemaVersion {
		db.Close()
		return nil, engine.NewError(engine.KindSchemaMismatch, "schema version mismatch").WithContext(opt.Location)
	}
	enginelog.Infof(opt.Location, "case opened (backend=%s)", backend)
	return m.wrap(db), nil
}

func (m *Manager) wrap(db engine.DbFacade) *Case {
	return &Case{
		DB:          db,
		ImageReader: m.ImageReader,
		VsReader:    m.VsReader,
		FsReader:    m.FsReader,
		Metrics:     m.Metrics,
	}
}

// currentSchemaVersion is the schema version this engine writes and
// expects to find on open.
const currentSchemaVersion = 1

// AttachKnownFiles attaches a known-good oracle. May be called at any
// time outside an ingest (spec.md §4.1).
func (c *Case) AttachKnownFiles(oracle engine.KnownFileOracle) {
	c.knownGood = oracle
}

// AttachKnownBad attaches a known-bad oracle.
func (c *Case) AttachKnownBad(oracle engine.KnownFileOracle) {
	c.knownBad = oracle
}

// DetachKnownFiles removes the known-good oracle, closing it.
func (c *Case) DetachKnownFiles() error {
	if c.knownGood == nil {
		return nil
	}
	err := c.knownGood.Close()
	c.knownGood = nil
	return err
}

// DetachKnownBad removes the known-bad oracle, closing it.
func (c *Case) DetachKnownBad() error {
	if c.knownBad == nil {
		return nil
	}
	err := c.knownBad.Close()
	c.knownBad = nil
	return err
}

// BeginIngest hands out a new IngestDriver bound to this case
// (spec.md §4.1 "begin_ingest()").
func (c *Case) BeginIngest() *ingest.Driver {
	return ingest.New(c.DB, c.ImageReader, c.VsReader, c.FsReader, c.knownGood, c.knownBad, c.Metrics)
}

// Close releases the case's backend connection.
func (c *Case) Close() error {
	return c.DB.Close()
}
