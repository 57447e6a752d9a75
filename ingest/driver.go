// Package ingest implements IngestDriver: one image ingest run inside
// a single savepoint-scoped transaction (spec.md §4.2).
package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tskcat/engine/coalesce"
	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
	"github.com/tskcat/engine/imagecache"
	"github.com/tskcat/engine/process"
	"github.com/tskcat/engine/walk"
)

// savepointName is fixed: exactly one savepoint exists per ingest
// (spec.md §4.2 "Savepoint discipline").
const savepointName = "ADDIMAGE"

// Status is the outcome of start().
type Status int

const (
	StatusOk Status = iota
	StatusCriticalError
	StatusRecoverableErrors
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusCriticalError:
		return "CriticalError"
	case StatusRecoverableErrors:
		return "RecoverableErrors"
	default:
		return "Unknown"
	}
}

// Options mirrors configure()'s recognized options (spec.md §4.2).
type Options struct {
	RecordBlockMap    bool
	HashFiles         bool
	SkipFatOrphans    bool
	RecordUnallocated bool
	MinChunkBytes     int64
	MaxChunkBytes     int64
	DeviceID          string
	Timezone          string
	AddFileSystems    bool
	ImageWriterPath   string
}

// DefaultOptions matches spec.md's stated defaults: no chunk bounds,
// file systems added, nothing else on.
func DefaultOptions() Options {
	return Options{
		AddFileSystems: true,
		MinChunkBytes:  0,
		MaxChunkBytes:  -1,
	}
}

// Driver is IngestDriver.
type Driver struct {
	DB          engine.DbFacade
	ImageReader engine.ImageReader
	VsReader    engine.VolumeSystemReader
	FsReader    engine.FileSystemReader
	KnownGood   engine.KnownFileOracle
	KnownBad    engine.KnownFileOracle
	Metrics     *engine.Metrics

	Options Options
	Errors  *engine.ErrorList

	mu             sync.Mutex
	transactionOpen bool
	cancelled      int32

	imageObjectID int64
	imageHandle   engine.ImageHandle
}

// New builds a Driver bound to one case's persistence and capabilities.
// Any oracle attachment forces HashFiles true, per configure()'s rule
// that an attached oracle implies hashing.
func New(db engine.DbFacade, imgReader engine.ImageReader, vsReader engine.VolumeSystemReader, fsReader engine.FileSystemReader, knownGood, knownBad engine.KnownFileOracle, metrics *engine.Metrics) *Driver {
	d := &Driver{
		DB:          db,
		ImageReader: imgReader,
		VsReader:    vsReader,
		FsReader:    fsReader,
		KnownGood:   knownGood,
		KnownBad:    knownBad,
		Metrics:     metrics,
		Errors:      &engine.ErrorList{},
	}
	d.Configure(DefaultOptions())
	return d
}

// Configure sets the options for the next start() call.
func (d *Driver) Configure(opt Options) {
	if d.KnownGood != nil || d.KnownBad != nil {
		opt.HashFiles = true
	}
	d.Options = opt
}

func (d *Driver) isCancelled() bool { return atomic.LoadInt32(&d.cancelled) != 0 }

// Cancel sets the cooperative stop flag (spec.md §4.2 "cancel()").
// Cancellation is not immediate: it is observed before the next file or
// coalescer boundary.
func (d *Driver) Cancel() { atomic.StoreInt32(&d.cancelled, 1) }

// Start runs the protocol of spec.md §4.2 "Protocol".
func (d *Driver) Start(ctx context.Context, imageParts []string, imageType engine.ImageType, sectorSize int) (Status, *engine.Error) {
	d.mu.Lock()
	if d.transactionOpen {
		d.mu.Unlock()
		return StatusCriticalError, engine.NewError(engine.KindTransaction, "an ingest is already open on this driver")
	}
	if d.DB.InTransaction() {
		d.mu.Unlock()
		return StatusCriticalError, engine.NewError(engine.KindTransaction, "an outer transaction is already open")
	}
	d.mu.Unlock()

	if err := d.DB.SavepointCreate(ctx, savepointName); err != nil {
		return StatusCriticalError, engine.Wrap(engine.KindTransaction, "savepoint create failed", err)
	}
	d.mu.Lock()
	d.transactionOpen = true
	d.mu.Unlock()

	imgHandle, err := d.ImageReader.Open(ctx, imageParts, imageType, sectorSize)
	if err != nil {
		d.registerFatal(engine.Wrap(engine.KindReadIO, "image open failed", err))
		d.Revert(ctx)
		return StatusCriticalError, nil
	}
	if d.Options.ImageWriterPath != "" {
		cached, cerr := imagecache.Wrap(imgHandle, d.Options.ImageWriterPath)
		if cerr != nil {
			d.registerFatal(cerr)
			imgHandle.Close()
			d.Revert(ctx)
			return StatusCriticalError, nil
		}
		imgHandle = cached
	}
	d.imageHandle = imgHandle

	deviceID := d.Options.DeviceID
	if deviceID == "" {
		// No caller-supplied device identifier: mint one so every ingested
		// image still has a stable, unique correlation id across cases.
		deviceID = uuid.NewString()
	}

	imageRow := &engine.Image{
		Type:       imageType,
		SectorSize: sectorSize,
		Size:       imgHandle.Size(),
		DeviceID:   deviceID,
		Timezone:   d.Options.Timezone,
		Parts:      imageParts,
	}
	imageObjID, err := d.DB.AddImage(ctx, imageRow)
	if err != nil {
		d.registerFatal(engine.Wrap(engine.KindTransaction, "image row insert failed", err))
		d.Revert(ctx)
		return StatusCriticalError, nil
	}
	d.imageObjectID = imageObjID

	for i, part := range imageParts {
		if err := d.DB.AddImageName(ctx, imageObjID, part, i); err != nil {
			d.registerFatal(engine.Wrap(engine.KindTransaction, "image name insert failed", err))
			d.Revert(ctx)
			return StatusCriticalError, nil
		}
	}

	if !d.Options.AddFileSystems {
		return StatusOk, nil
	}

	newProcessor := func() *process.Processor {
		return process.New(d.DB, d.Errors, d.Metrics, process.Options{
			RecordBlockMap: d.Options.RecordBlockMap,
			HashFiles:      d.Options.HashFiles,
		}, d.KnownGood, d.KnownBad)
	}

	iw := walk.New(d.DB, d.VsReader, d.FsReader, d.Errors, d.Metrics, engine.DefaultVolumeFilter, newProcessor)
	iw.SkipFatOrphans = d.Options.SkipFatOrphans
	iw.Cancelled = d.isCancelled

	if perr := iw.Walk(ctx, imgHandle, imageObjID, imageObjID); perr != nil {
		if perr.Kind == engine.KindTransaction {
			d.registerFatal(perr)
			d.Revert(ctx)
			return StatusCriticalError, nil
		}
		d.Errors.Register(perr)
		d.Metrics.IncErrors()
	}

	if d.Options.RecordUnallocated {
		coalescer := coalesce.New(d.DB, d.Metrics, d.Errors, coalesce.Options{
			RecordUnallocated: true,
			MinChunkBytes:     d.Options.MinChunkBytes,
			MaxChunkBytes:     d.Options.MaxChunkBytes,
		}, d.isCancelled)
		coalescer.OpenFs = func(ctx context.Context, fi engine.FsInfo) (engine.FileSystemHandle, error) {
			return d.FsReader.OpenFileSystem(ctx, imgHandle, fi.ByteOffset)
		}
		if perr := coalescer.Run(ctx, imageObjID, imageObjID, imgHandle.Size()); perr != nil {
			if perr.Kind == engine.KindTransaction {
				d.registerFatal(perr)
				d.Revert(ctx)
				return StatusCriticalError, nil
			}
			d.Errors.Register(perr)
			d.Metrics.IncErrors()
		}
	}

	if d.Errors.Len() > 0 {
		return StatusRecoverableErrors, nil
	}
	return StatusOk, nil
}

func (d *Driver) registerFatal(err *engine.Error) {
	d.Errors.Register(err)
	d.Metrics.IncErrors()
	enginelog.Errorf("ingest", "fatal: %v", err)
}

// Commit releases the savepoint, making the image row visible
// (spec.md §4.2 "commit() -> image_id").
func (d *Driver) Commit(ctx context.Context) (int64, *engine.Error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.transactionOpen {
		return 0, engine.NewError(engine.KindTransaction, "no ingest is open")
	}
	if err := d.DB.SavepointRelease(ctx, savepointName); err != nil {
		return 0, engine.Wrap(engine.KindTransaction, "savepoint release failed", err)
	}
	d.transactionOpen = false
	return d.imageObjectID, nil
}

// Revert rolls back the savepoint, discarding the image and everything
// inserted under it (spec.md §4.2 "revert()").
func (d *Driver) Revert(ctx context.Context) *engine.Error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.transactionOpen {
		return nil
	}
	if err := d.DB.SavepointRevert(ctx, savepointName); err != nil {
		return engine.Wrap(engine.KindTransaction, "savepoint revert failed", err)
	}
	d.transactionOpen = false
	return nil
}

// Close implements the "destructor runs while the transaction is open"
// rule: an open driver closed without an explicit commit/revert
// implicitly reverts (spec.md §4.2).
func (d *Driver) Close(ctx context.Context) *engine.Error {
	d.mu.Lock()
	open := d.transactionOpen
	d.mu.Unlock()
	if open {
		if perr := d.Revert(ctx); perr != nil {
			return perr
		}
	}
	if d.imageHandle != nil {
		return wrapCloseErr(d.imageHandle.Close())
	}
	return nil
}

func wrapCloseErr(err error) *engine.Error {
	if err == nil {
		return nil
	}
	return engine.Wrap(engine.KindReadIO, "image close failed", err)
}
