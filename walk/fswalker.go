// Package walk implements ImageWalker and FsWalker: the recursive
// descent through an image's volume/file-system layers, then the
// depth-first directory walk that feeds entries to FileProcessor
// (spec.md §4.3, §4.4).
package walk

import (
	"context"
	"sync"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
	"github.com/tskcat/engine/process"
)

// TraversalFlags combine Allocated/Unallocated/Recurse selection for a
// file-system walk.
type TraversalFlags uint8

const (
	TraverseAllocated TraversalFlags = 1 << iota
	TraverseUnallocated
	TraverseRecurse
)

func (f TraversalFlags) has(bit TraversalFlags) bool { return f&bit != 0 }

// DefaultTraversal descends allocated and unallocated names, recursing
// into subdirectories.
const DefaultTraversal = TraverseAllocated | TraverseUnallocated | TraverseRecurse

// FsWalker walks one opened file system depth-first, handing every
// entry to a Processor.
type FsWalker struct {
	Processor *process.Processor
	Flags     TraversalFlags
	Cancelled func() bool

	// SkipOrphans, for FAT variants, suppresses the descent into the
	// synthetic orphan-files directory (spec.md §4.3 "Orphan handling").
	SkipOrphans bool

	mu      sync.Mutex
	currDir string // the "current directory path" breadcrumb (spec.md §4.4)
}

// NewFsWalker builds a walker bound to proc, checking cancelled() before
// every FileProcessor invocation.
func NewFsWalker(proc *process.Processor, flags TraversalFlags, cancelled func() bool) *FsWalker {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	return &FsWalker{Processor: proc, Flags: flags, Cancelled: cancelled}
}

// CurrentDirectory returns the breadcrumb path the walker is presently
// inside, safe to call from another goroutine (e.g. a progress reporter).
func (w *FsWalker) CurrentDirectory() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currDir
}

func (w *FsWalker) setCurrentDirectory(path string) {
	w.mu.Lock()
	w.currDir = path
	w.mu.Unlock()
}

// WalkRoot processes a file system's root directory and, if Recurse is
// set, descends into its children (spec.md §4.3 "A file system's root
// directory is opened and handed to FileProcessor ... before the main
// directory-walk begins", §4.4).
func (w *FsWalker) WalkRoot(ctx context.Context, fsID int64, fsByteOffset int64, fsReader engine.FileSystemHandle, dataSourceID, fsRootObjectID int64) *engine.Error {
	w.setCurrentDirectory(process.RootParentPath)

	rootIn := process.EntryInput{
		FsID:           fsID,
		FsByteOffset:   fsByteOffset,
		FsReader:       fsReader,
		DataSourceID:   dataSourceID,
		Entry:          engine.DirEntry{Name: "", MetaAddr: fsReader.RootInode(), ParentMetaAddr: fsReader.RootInode()},
		ParentPath:     process.RootParentPath,
		IsRoot:         true,
		FsRootObjectID: fsRootObjectID,
		SelfMetaAddr:   fsReader.RootInode(),
	}

	if w.Cancelled() {
		return engine.ErrCancelled
	}
	res, perr := w.Processor.ProcessEntry(ctx, rootIn)
	if perr != nil {
		return perr
	}

	if w.Flags.has(TraverseRecurse) {
		// The root directory is its own parent for ".." purposes.
		if perr := w.walkDir(ctx, fsID, fsByteOffset, fsReader, dataSourceID, fsReader.RootInode(), res.ObjectID, process.RootParentPath, fsReader.RootInode(), true); perr != nil {
			return perr
		}
	}

	if !w.SkipOrphans {
		if orphanMetaAddr, ok := fsReader.OrphanDirMetaAddr(); ok {
			if w.Cancelled() {
				return engine.ErrCancelled
			}
			orphanIn := process.EntryInput{
				FsID:         fsID,
				FsByteOffset: fsByteOffset,
				FsReader:     fsReader,
				DataSourceID: dataSourceID,
				Entry:        engine.DirEntry{Name: "$OrphanFiles", MetaAddr: orphanMetaAddr, ParentMetaAddr: fsReader.RootInode()},
				ParentPath:   process.RootParentPath,
				SelfMetaAddr: orphanMetaAddr,
			}
			orphanRes, perr := w.Processor.ProcessEntry(ctx, orphanIn)
			if perr != nil {
				w.Processor.Errors.Register(perr)
				w.Processor.Metrics.IncErrors()
				return nil
			}
			if w.Flags.has(TraverseRecurse) {
				childPath, _ := process.ChildParentPath(process.RootParentPath, "$OrphanFiles")
				w.setCurrentDirectory(childPath)
				return w.walkDir(ctx, fsID, fsByteOffset, fsReader, dataSourceID, orphanMetaAddr, orphanRes.ObjectID, childPath, fsReader.RootInode(), true)
			}
		}
	}
	return nil
}

// walkDir processes every entry of the directory at dirMetaAddr, then
// recurses into subdirectories in the order the reader yields them
// (spec.md §4.4 "Ordering"). parentMetaAddr/hasParent describe
// dirMetaAddr's own parent, the resolution target for a "..": entry
// inside this directory.
func (w *FsWalker) walkDir(ctx context.Context, fsID int64, fsByteOffset int64, fsReader engine.FileSystemHandle, dataSourceID, dirMetaAddr, dirObjectID int64, dirPath string, parentMetaAddr int64, hasParent bool) *engine.Error {
	entries, err := fsReader.OpenDir(ctx, dirMetaAddr)
	if err != nil {
		return engine.Wrap(engine.KindCorruptFs, "open directory failed", err).WithContext(dirPath)
	}

	selfMetaAddr := dirMetaAddr

	type pendingDir struct {
		metaAddr int64
		objectID int64
		path     string
	}
	var subdirs []pendingDir

	for _, entry := range entries {
		if entry.NameFlags.Has(engine.NameAllocated) && !w.Flags.has(TraverseAllocated) {
			continue
		}
		if entry.NameFlags.Has(engine.NameUnallocated) && !w.Flags.has(TraverseUnallocated) {
			continue
		}

		if w.Cancelled() {
			return engine.ErrCancelled
		}

		in := process.EntryInput{
			FsID:                fsID,
			FsByteOffset:        fsByteOffset,
			FsReader:            fsReader,
			DataSourceID:        dataSourceID,
			Entry:               entry,
			ParentPath:          dirPath,
			SelfMetaAddr:        selfMetaAddr,
			HasGrandParent:      hasParent,
			GrandParentMetaAddr: parentMetaAddr,
		}

		res, perr := w.Processor.ProcessEntry(ctx, in)
		if perr != nil {
			if perr.Kind == engine.KindTransaction {
				return perr
			}
			w.Processor.Errors.Register(perr)
			w.Processor.Metrics.IncErrors()
			enginelog.Errorf(dirPath, "entry %q: %v", entry.Name, perr)
			continue
		}

		if res.IsDir && w.Flags.has(TraverseRecurse) && entry.Name != "." && entry.Name != ".." {
			subdirs = append(subdirs, pendingDir{metaAddr: entry.MetaAddr, objectID: res.ObjectID, path: res.ChildPath})
		}
	}

	for _, d := range subdirs {
		w.setCurrentDirectory(d.path)
		if perr := w.walkDir(ctx, fsID, fsByteOffset, fsReader, dataSourceID, d.metaAddr, d.objectID, d.path, dirMetaAddr, true); perr != nil {
			return perr
		}
	}
	w.setCurrentDirectory(dirPath)
	return nil
}
