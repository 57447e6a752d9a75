// Package coalesce implements UnallocCoalescer: after the directory
// walk, it emits virtual files representing unallocated sectors,
// grouped under a chunking policy (spec.md §4.6).
package coalesce

import (
	"context"

	"github.com/aalpar/deheap"

	"github.com/tskcat/engine/engine"
)

// Options mirrors the IngestDriver configuration relevant to coalescing.
type Options struct {
	RecordUnallocated bool
	MinChunkBytes     int64 // 0 = never emit early; <0 = emit per contiguous run
	MaxChunkBytes     int64 // <0 = unbounded
}

// Coalescer implements spec.md §4.6.
type Coalescer struct {
	DB        engine.DbFacade
	Metrics   *engine.Metrics
	Errors    *engine.ErrorList
	Cancelled func() bool
	Options   Options

	// OpenFs re-opens the file-system handle for a given FsInfo so the
	// coalescer can read its unallocated-block list; the walk's own
	// handle is already closed by the time coalescing runs. May be nil
	// in tests that inject blocks directly through accumulateAndEmit.
	OpenFs func(ctx context.Context, fi engine.FsInfo) (engine.FileSystemHandle, error)
}

// New builds a Coalescer. cancelled may be nil.
func New(db engine.DbFacade, metrics *engine.Metrics, errs *engine.ErrorList, opt Options, cancelled func() bool) *Coalescer {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	return &Coalescer{DB: db, Metrics: metrics, Errors: errs, Cancelled: cancelled, Options: opt}
}

// pendingRange is one contiguous run of unallocated blocks accumulated
// before it is either extended, flushed, or emitted.
type pendingRange struct {
	startBlock int64
	lastBlock  int64 // inclusive
}

// rangeHeap orders pendingRanges by start address; deheap keeps the
// accumulator's pending set in address order so overlap detection
// (spec.md §4.6 "Range overlap ... is a defect") is a simple adjacency
// check against the heap's minimum instead of an O(n^2) scan.
type rangeHeap []pendingRange

func (h rangeHeap) Len() int            { return len(h) }
func (h rangeHeap) Less(i, j int) bool  { return h[i].startBlock < h[j].startBlock }
func (h rangeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rangeHeap) Push(x interface{}) { *h = append(*h, x.(pendingRange)) }
func (h *rangeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Run executes the full protocol of spec.md §4.6 against one image's
// worth of already-walked file systems and volumes.
func (c *Coalescer) Run(ctx context.Context, imageID int64, imageObjectID int64, imageSize int64) *engine.Error {
	if !c.Options.RecordUnallocated {
		return nil
	}

	fsInfos, err := c.DB.GetFsInfos(ctx, imageID)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "list file systems failed", err)
	}
	for _, fi := range fsInfos {
		if c.Cancelled() {
			return engine.ErrCancelled
		}
		if perr := c.coalesceFileSystem(ctx, fi); perr != nil {
			return perr
		}
	}

	volumes, err := c.DB.GetVolumes(ctx, imageID)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "list volumes failed", err)
	}
	hadFsOrVs := len(fsInfos) > 0 || len(volumes) > 0
	for _, v := range volumes {
		if c.Cancelled() {
			return engine.ErrCancelled
		}
		if v.Flags.Has(engine.VolUnallocated) || v.Flags.Has(engine.VolMeta) || !hasFileSystem(fsInfos, v) {
			if perr := c.emitVolumeUnalloc(ctx, v); perr != nil {
				return perr
			}
		}
	}

	if !hadFsOrVs {
		return c.emitImageUnalloc(ctx, imageObjectID, imageSize)
	}
	return nil
}

// hasFileSystem reports whether a file system was recorded directly
// under this specific volume (FileSystem.VolumeID == v.ID), not merely
// whether the image has any file system at all -- two volumes in the
// same volume system are independent for this purpose.
func hasFileSystem(fsInfos []engine.FsInfo, v engine.VolumeRowInfo) bool {
	for _, fi := range fsInfos {
		if fi.VolumeID == v.ID {
			return true
		}
	}
	return false
}

func (c *Coalescer) coalesceFileSystem(ctx context.Context, fi engine.FsInfo) *engine.Error {
	// AddUnallocParent resolves the file system's root directory and
	// creates $Unalloc beneath it (spec.md §4.6 step 1a).
	unallocDirID, err := c.DB.AddUnallocParent(ctx, fi.ID)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "$Unalloc directory insert failed", err)
	}

	blocks, rerr := c.unallocatedBlocksOf(ctx, fi)
	if rerr != nil {
		return rerr
	}

	return c.accumulateAndEmit(ctx, unallocDirID, fi.ID, true, fi.ByteOffset, fi.BlockSize, blocks)
}

// unallocatedBlocksOf re-opens fi's file system (the walk's own handle
// is already closed by the time coalescing runs) and reads its
// unallocated-block list. With no OpenFs wired, the file system simply
// contributes no unallocated blocks to this pass (only exercised by
// tests that inject blocks directly).
func (c *Coalescer) unallocatedBlocksOf(ctx context.Context, fi engine.FsInfo) ([]int64, *engine.Error) {
	if c.OpenFs == nil {
		return nil, nil
	}
	handle, err := c.OpenFs(ctx, fi)
	if err != nil {
		return nil, engine.Wrap(engine.KindReadIO, "reopen file system for unallocated scan", err).WithContext(string(fi.Type))
	}
	defer handle.Close()

	blocks, err := handle.UnallocatedBlocks(ctx)
	if err != nil {
		return nil, engine.Wrap(engine.KindReadIO, "read unallocated blocks", err)
	}
	return blocks, nil
}

// accumulateAndEmit runs the greedy chunking loop of spec.md §4.6 steps
// b-e over an ascending, block-granular unallocated list.
func (c *Coalescer) accumulateAndEmit(ctx context.Context, parentID int64, fsID int64, hasFs bool, fsByteOffset int64, blockSize int, blocks []int64) *engine.Error {
	if len(blocks) == 0 {
		return nil
	}

	pending := &rangeHeap{}
	deheap.Init(pending)

	var (
		curStart, prevBlock int64
		accumulated         int64
		inRun               bool
	)

	flushPending := func() *engine.Error {
		if pending.Len() == 0 {
			return nil
		}
		return c.emit(ctx, parentID, fsID, hasFs, fsByteOffset, blockSize, pending)
	}

	closeRun := func() {
		if !inRun {
			return
		}
		deheap.Push(pending, pendingRange{startBlock: curStart, lastBlock: prevBlock})
		accumulated += (prevBlock - curStart + 1) * int64(blockSize)
		inRun = false
	}

	for _, b := range blocks {
		if !inRun {
			curStart, prevBlock, inRun = b, b, true
			continue
		}
		consecutive := b == prevBlock+1
		underMax := c.Options.MaxChunkBytes < 0 || accumulated < c.Options.MaxChunkBytes
		if consecutive && underMax {
			prevBlock = b
			continue
		}

		closeRun()
		if perr := c.maybeEmitAfterClose(ctx, parentID, fsID, hasFs, fsByteOffset, blockSize, pending, &accumulated); perr != nil {
			return perr
		}
		curStart, prevBlock, inRun = b, b, true
	}
	closeRun()

	if perr := c.maybeEmitAfterClose(ctx, parentID, fsID, hasFs, fsByteOffset, blockSize, pending, &accumulated); perr != nil {
		return perr
	}
	return flushPending()
}

// maybeEmitAfterClose applies the min/max chunk decision of spec.md
// §4.6 step d after a run has just been closed into pending.
func (c *Coalescer) maybeEmitAfterClose(ctx context.Context, parentID int64, fsID int64, hasFs bool, fsByteOffset int64, blockSize int, pending *rangeHeap, accumulated *int64) *engine.Error {
	min := c.Options.MinChunkBytes
	max := c.Options.MaxChunkBytes

	reachedMax := max >= 0 && *accumulated >= max
	switch {
	case min == 0:
		if !reachedMax {
			return nil
		}
	case min > 0 && *accumulated < min:
		if !reachedMax {
			return nil
		}
	case min < 0:
		// emit per contiguous run, fallthrough below
	}

	if perr := c.emit(ctx, parentID, fsID, hasFs, fsByteOffset, blockSize, pending); perr != nil {
		return perr
	}
	*accumulated = 0
	return nil
}

// emit drains pending (address order, via deheap) into one File row
// plus one LayoutRange per range (spec.md §4.6 "On emit").
func (c *Coalescer) emit(ctx context.Context, parentID int64, fsID int64, hasFs bool, fsByteOffset int64, blockSize int, pending *rangeHeap) *engine.Error {
	if pending.Len() == 0 {
		return nil
	}

	var ranges []engine.LayoutRange
	var size int64
	seq := 0
	prevLast := int64(-1)

	for pending.Len() > 0 {
		r := deheap.Pop(pending).(pendingRange)
		if prevLast >= 0 && r.startBlock <= prevLast {
			return engine.NewError(engine.KindArgument, "overlapping unallocated ranges")
		}
		prevLast = r.lastBlock

		byteStart := fsByteOffset + r.startBlock*int64(blockSize)
		byteLen := (r.lastBlock - r.startBlock + 1) * int64(blockSize)
		ranges = append(ranges, engine.LayoutRange{ByteStart: byteStart, ByteLen: byteLen, Sequence: seq})
		size += byteLen
		seq++
	}

	// Naming ("Unalloc_<parent-id>_<first-byte>_<last-byte+1>") and the
	// File/Object row shape are the backend's concern (spec.md §4.6
	// "On emit"); AddUnallocBlockFile is given the ranges it needs to
	// derive both.
	if _, err := c.DB.AddUnallocBlockFile(ctx, parentID, fsID, hasFs, size, ranges); err != nil {
		return engine.Wrap(engine.KindTransaction, "unalloc file insert failed", err)
	}
	c.Metrics.IncUnalloc()
	return nil
}

// emitVolumeUnalloc emits the single unallocated-block file spanning a
// whole volume (spec.md §4.6 step 2): a volume flagged unallocated or
// meta, or allocated without a recorded file system, carries no
// block-granular unallocated map, so there is nothing to chunk -- one
// range covering the volume's full extent, parented directly on the
// volume's own object id.
func (c *Coalescer) emitVolumeUnalloc(ctx context.Context, v engine.VolumeRowInfo) *engine.Error {
	vs, err := c.DB.GetVolumeSystem(ctx, v.VsID)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "volume system lookup failed", err)
	}

	size := v.LengthBlock * int64(vs.BlockSize)
	ranges := []engine.LayoutRange{{ByteStart: vs.ByteOffset + v.StartBlock*int64(vs.BlockSize), ByteLen: size, Sequence: 0}}
	if _, err := c.DB.AddUnallocBlockFile(ctx, v.ID, 0, false, size, ranges); err != nil {
		return engine.Wrap(engine.KindTransaction, "volume-wide unalloc file insert failed", err)
	}
	c.Metrics.IncUnalloc()
	return nil
}

func (c *Coalescer) emitImageUnalloc(ctx context.Context, imageObjectID int64, imageSize int64) *engine.Error {
	ranges := []engine.LayoutRange{{ByteStart: 0, ByteLen: imageSize, Sequence: 0}}
	_, err := c.DB.AddUnallocBlockFile(ctx, imageObjectID, 0, false, imageSize, ranges)
	if err != nil {
		return engine.Wrap(engine.KindTransaction, "image-wide unalloc file insert failed", err)
	}
	c.Metrics.IncUnalloc()
	return nil
}
