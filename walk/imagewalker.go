package walk

import (
	"context"
	"fmt"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
	"github.com/tskcat/engine/process"
)

// FilterDecision is the result of a per-level filter hook
// (spec.md §4.3 "{Continue, Skip, Stop}").
type FilterDecision int

const (
	Continue FilterDecision = iota
	Skip
	Stop
)

// Filters lets IngestDriver veto descent at each level of the walk
// without FsWalker/ImageWalker knowing why.
type Filters struct {
	VolumeSystem func(vs engine.VolumeSystemHandle) FilterDecision
	Volume       func(vol engine.VolumeInfo) FilterDecision
	FileSystem   func(fsType engine.FsType) FilterDecision
}

func defaultFilters() Filters {
	always := func() FilterDecision { return Continue }
	return Filters{
		VolumeSystem: func(engine.VolumeSystemHandle) FilterDecision { return always() },
		Volume:       func(engine.VolumeInfo) FilterDecision { return always() },
		FileSystem:   func(engine.FsType) FilterDecision { return always() },
	}
}

// ImageWalker drives the descent of spec.md §4.3's state machine:
// image -> (volume system?) -> volumes -> file systems -> FsWalker.
type ImageWalker struct {
	DB             engine.DbFacade
	VsReader       engine.VolumeSystemReader // nil if the image format has no volume-system support wired in
	FsReader       engine.FileSystemReader
	Errors         *engine.ErrorList // per-volume fs-open failures register here instead of aborting the walk
	Metrics        *engine.Metrics
	Filters        Filters
	VolumeFilter   engine.VolumeFlag
	SkipFatOrphans bool
	Cancelled      func() bool

	newProcessor func() *process.Processor
	Traversal    TraversalFlags
}

// New builds an ImageWalker. newProcessor is called once per opened
// file system so each gets its own parent cache (spec.md §4.5's cache
// is scoped per file-system walk).
func New(db engine.DbFacade, vsReader engine.VolumeSystemReader, fsReader engine.FileSystemReader, errs *engine.ErrorList, metrics *engine.Metrics, volumeFilter engine.VolumeFlag, newProcessor func() *process.Processor) *ImageWalker {
	return &ImageWalker{
		DB:           db,
		VsReader:     vsReader,
		FsReader:     fsReader,
		Errors:       errs,
		Metrics:      metrics,
		Filters:      defaultFilters(),
		VolumeFilter: volumeFilter,
		Cancelled:    func() bool { return false },
		newProcessor: newProcessor,
		Traversal:    DefaultTraversal,
	}
}

// Walk runs the state machine against one opened image for imageObjectID
// (the Image row's object id, the root of every parent chain under it).
func (w *ImageWalker) Walk(ctx context.Context, img engine.ImageHandle, imageObjectID int64, dataSourceID int64) *engine.Error {
	if w.Cancelled() {
		return engine.ErrCancelled
	}

	if w.VsReader != nil {
		vs, err := w.VsReader.OpenVolumeSystem(ctx, img, 0)
		if err == nil {
			return w.walkVolumeSystem(ctx, img, vs, imageObjectID, dataSourceID)
		}
		if !isNotFound(err) {
			return engine.Wrap(engine.KindCorruptFs, "volume system open failed", err)
		}
		// fall through: no recognized volume system, try fs at offset 0
	}

	return w.tryOpenFsAt(ctx, img, 0, imageObjectID, dataSourceID, true, true)
}

func (w *ImageWalker) walkVolumeSystem(ctx context.Context, img engine.ImageHandle, vs engine.VolumeSystemHandle, imageObjectID int64, dataSourceID int64) *engine.Error {
	defer vs.Close()

	if d := w.Filters.VolumeSystem(vs); d == Stop {
		return engine.ErrCancelled
	} else if d == Skip {
		return nil
	}

	vsRow := &engine.VolumeSystem{ImageID: imageObjectID, Type: vs.Type(), ByteOffset: 0, BlockSize: vs.BlockSize()}
	vsID, err := w.DB.AddVolumeSystem(ctx, vsRow)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "volume system insert failed", err)
	}

	for _, vi := range vs.Volumes() {
		if w.Cancelled() {
			return engine.ErrCancelled
		}
		if !w.VolumeFilter.Has(vi.Flags) {
			continue
		}
		if d := w.Filters.Volume(vi); d == Stop {
			return engine.ErrCancelled
		} else if d == Skip {
			continue
		}

		volRow := &engine.Volume{
			VsID:        vsID,
			SlotAddr:    vi.SlotAddr,
			StartBlock:  vi.StartBlock,
			LengthBlock: vi.LengthBlock,
			Description: vi.Description,
			Flags:       vi.Flags,
		}
		volID, err := w.DB.AddVolume(ctx, volRow)
		if err != nil {
			return engine.Wrap(engine.KindTransaction, "volume insert failed", err)
		}

		byteOffset := vi.StartBlock * int64(vs.BlockSize())
		isAllocated := vi.Flags.Has(engine.VolAllocated)
		if perr := w.tryOpenFsAt(ctx, img, byteOffset, volID, dataSourceID, isAllocated, false); perr != nil {
			return perr
		}
	}
	return nil
}

// tryOpenFsAt attempts to open a file system at byteOffset, parented to
// parentObjectID. registerFailure controls whether a failed open is
// registered as a (non-fatal) error: it is suppressed for unallocated
// or meta volumes, which usually carry no file system (spec.md §4.3).
// A registered failure is recorded into Errors and the walk continues
// with the next volume; it never aborts the descent.
func (w *ImageWalker) tryOpenFsAt(ctx context.Context, img engine.ImageHandle, byteOffset int64, parentObjectID int64, dataSourceID int64, registerFailure bool, isImageRoot bool) *engine.Error {
	fsHandle, err := w.FsReader.OpenFileSystem(ctx, img, byteOffset)
	if err != nil {
		enginelog.Errorf(byteOffset, "file system open failed: %v", err)
		if registerFailure {
			w.registerError(engine.Wrap(engine.KindCorruptFs, "file system open failed", err).
				WithContext(fmt.Sprintf("byteOffset=%d parent=%d", byteOffset, parentObjectID)))
		}
		return nil
	}
	defer fsHandle.Close()

	if d := w.Filters.FileSystem(fsHandle.Type()); d == Stop {
		return engine.ErrCancelled
	} else if d == Skip {
		return nil
	}

	fsRow := &engine.FileSystem{
		ParentID:   parentObjectID,
		Type:       fsHandle.Type(),
		ByteOffset: byteOffset,
		BlockSize:  fsHandle.BlockSize(),
		BlockCount: fsHandle.BlockCount(),
		RootInode:  fsHandle.RootInode(),
		FirstInode: fsHandle.FirstInode(),
		LastInode:  fsHandle.LastInode(),
	}
	if isImageRoot {
		fsRow.ImageID = parentObjectID
	} else {
		fsRow.VolumeID = parentObjectID
	}

	fsID, aerr := w.DB.AddFileSystem(ctx, fsRow)
	if aerr != nil {
		return engine.Wrap(engine.KindTransaction, "file system insert failed", aerr)
	}

	proc := w.newProcessor()
	fsWalker := NewFsWalker(proc, w.Traversal, w.Cancelled)
	fsWalker.SkipOrphans = fsHandle.IsFAT() && w.SkipFatOrphans

	return fsWalker.WalkRoot(ctx, fsID, byteOffset, fsHandle, dataSourceID, fsID)
}

// registerError records a non-fatal walk error (spec.md §4.3/§7: the
// descent continues, but the failure is visible to error_list()).
// Errors/Metrics may be nil in tests that don't care about registration.
func (w *ImageWalker) registerError(perr *engine.Error) {
	if w.Errors != nil {
		w.Errors.Register(perr)
	}
	if w.Metrics != nil {
		w.Metrics.IncErrors()
	}
}

func isNotFound(err error) bool {
	var e *engine.Error
	if as, ok := err.(*engine.Error); ok {
		e = as
	}
	return e != nil && e.Kind == engine.KindNotFound
}
