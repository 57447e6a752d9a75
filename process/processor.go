package process

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
)

// Options are the FileProcessor-relevant subset of IngestDriver's
// configure() options (spec.md §4.2).
type Options struct {
	RecordBlockMap bool
	HashFiles      bool
}

// Processor is FileProcessor (spec.md §4.5): it turns one directory
// entry into persisted File/LayoutRange rows, computing a content hash
// when enabled and maintaining the parent-id cache.
type Processor struct {
	DB        engine.DbFacade
	Cache     *ParentCache
	Errors    *engine.ErrorList
	Metrics   *engine.Metrics
	Options   Options
	KnownGood engine.KnownFileOracle // nil if not attached
	KnownBad  engine.KnownFileOracle // nil if not attached
}

// New builds a Processor. knownGood/knownBad may be nil.
func New(db engine.DbFacade, errs *engine.ErrorList, metrics *engine.Metrics, opt Options, knownGood, knownBad engine.KnownFileOracle) *Processor {
	return &Processor{
		DB:        db,
		Cache:     NewParentCache(),
		Errors:    errs,
		Metrics:   metrics,
		Options:   opt,
		KnownGood: knownGood,
		KnownBad:  knownBad,
	}
}

// EntryInput is everything FsWalker knows about one directory entry
// that FileProcessor needs to persist it.
type EntryInput struct {
	FsID         int64
	FsByteOffset int64
	FsReader     engine.FileSystemHandle
	DataSourceID int64
	Entry        engine.DirEntry

	// ParentPath is the full path of the directory containing Entry,
	// ending in "/" — the "current directory path" breadcrumb
	// (spec.md §4.4), computed once per directory via ChildParentPath
	// and reused for every entry inside it.
	ParentPath string

	// IsRoot is true only for the single call ImageWalker makes for a
	// file system's root directory (spec.md §4.3 "A file system's root
	// directory is opened and handed to FileProcessor ... before the
	// main directory-walk begins").
	IsRoot         bool
	FsRootObjectID int64 // the FileSystem object id; root's parent

	// SelfMetaAddr/HasGrandParent/GrandParentMetaAddr support the "."
	// and ".." rewrite (spec.md §4.5 step 1): they describe the
	// directory currently being walked, which is Entry's logical
	// target when Entry.Name is "." or "..".
	SelfMetaAddr        int64
	HasGrandParent      bool
	GrandParentMetaAddr int64
}

// Result is what ProcessEntry returns for an entry that turned out to
// be a directory, so FsWalker knows how to recurse.
type Result struct {
	ObjectID  int64
	IsDir     bool
	ChildPath string // only meaningful if IsDir
}

// ProcessEntry runs the per-file algorithm of spec.md §4.5. A non-nil
// *engine.Error with Kind other than duplicate-key-shaped Transaction
// errors is a per-file error the caller should register and continue
// past; Transaction-kind errors are fatal and must propagate.
func (p *Processor) ProcessEntry(ctx context.Context, in EntryInput) (Result, *engine.Error) {
	isDotEntry := in.Entry.Name == "." || in.Entry.Name == ".."
	effectiveMetaAddr := in.Entry.MetaAddr
	if in.Entry.Name == "." {
		effectiveMetaAddr = in.SelfMetaAddr
	} else if in.Entry.Name == ".." {
		if in.HasGrandParent {
			effectiveMetaAddr = in.GrandParentMetaAddr
		} else {
			effectiveMetaAddr = in.FsReader.RootInode()
		}
	}

	stat, statErr := in.FsReader.Stat(ctx, effectiveMetaAddr)
	if statErr != nil {
		return Result{}, engine.Wrap(engine.KindCorruptFs, "stat failed", statErr).WithContext(in.Entry.Name)
	}
	isDir := stat.Type == engine.FileDirectory

	var parentObjID int64
	if in.IsRoot {
		parentObjID = in.FsRootObjectID
	} else {
		objID, err := p.resolveParent(ctx, in.FsID, in.FsReader, in.Entry.ParentMetaAddr, in.ParentPath)
		if err != nil {
			return Result{}, err
		}
		parentObjID = objID
	}

	var (
		firstObjID int64
		wroteAny   bool
	)

	if isDotEntry {
		f := p.baseFile(in, parentObjID, effectiveMetaAddr, stat, in.Entry.Name)
		id, err := p.insertFile(ctx, f)
		if err != nil {
			return Result{}, err
		}
		firstObjID, wroteAny = id, true
	} else {
		attrs, aErr := in.FsReader.Attributes(ctx, effectiveMetaAddr)
		if aErr != nil {
			return Result{}, engine.Wrap(engine.KindCorruptFs, "attribute read failed", aErr).WithContext(in.Entry.Name)
		}
		for _, attr := range attrs {
			if attr.Type != in.FsReader.DefaultAttrType() {
				continue
			}
			id, err := p.processAttribute(ctx, in, parentObjID, effectiveMetaAddr, stat, attr)
			if err != nil {
				return Result{}, err
			}
			if !wroteAny {
				firstObjID = id
			}
			wroteAny = true
		}
		if !wroteAny {
			// Step 3/5: zero (or zero-default-type) attributes.
			f := p.baseFile(in, parentObjID, effectiveMetaAddr, stat, in.Entry.Name)
			id, err := p.insertFile(ctx, f)
			if err != nil {
				return Result{}, err
			}
			firstObjID, wroteAny = id, true
		}
	}

	p.Metrics.IncFiles()

	result := Result{ObjectID: firstObjID, IsDir: isDir}
	if isDir && !isDotEntry {
		childPath, ok := ChildParentPath(in.ParentPath, in.Entry.Name)
		if !ok {
			return Result{}, engine.NewError(engine.KindArgument, "path too long").WithContext(in.Entry.Name)
		}
		disc := discriminatorFor(stat, childPath)
		p.Cache.Put(in.FsID, effectiveMetaAddr, disc, firstObjID)
		result.ChildPath = childPath
	}
	return result, nil
}

// processAttribute handles step 4 of spec.md §4.5 for one default-type
// attribute of a (non-dot) entry.
func (p *Processor) processAttribute(ctx context.Context, in EntryInput, parentObjID, metaAddr int64, stat engine.FileStat, attr engine.Attribute) (int64, *engine.Error) {
	f := p.baseFile(in, parentObjID, metaAddr, stat, AttributeFileName(in.Entry.Name, attr.Name))
	f.AttrType = attr.Type
	f.AttrID = attr.ID
	f.Size = attr.Size

	isRegular := stat.Type == engine.FileRegular
	if p.Options.HashFiles && isRegular && attr.Name == "" {
		hashHex, n, hErr := p.hashAttribute(ctx, in, metaAddr, attr)
		if hErr != nil {
			p.registerAndCount(engine.Wrap(engine.KindReadIO, "hash failed", hErr).WithContext(in.Entry.Name))
		} else {
			f.Hash = hashHex
			p.Metrics.AddBytesHashed(n)
			f.Known = p.classify(ctx, hashHex)
		}
	}

	var ranges []engine.LayoutRange
	if p.Options.RecordBlockMap && !attr.Resident {
		seq := 0
		blockSize := int64(in.FsReader.BlockSize())
		for _, run := range attr.Runs {
			if run.Sparse {
				continue
			}
			ranges = append(ranges, engine.LayoutRange{
				ByteStart: in.FsByteOffset + run.StartBlock*blockSize,
				ByteLen:   run.LengthBlk * blockSize,
				Sequence:  seq,
			})
			seq++
		}
	}
	f.HasLayout = len(ranges) > 0

	id, err := p.insertFile(ctx, f)
	if err != nil {
		return 0, err
	}
	for i := range ranges {
		ranges[i].FileID = id
		if dbErr := p.DB.AddLayoutRange(ctx, ranges[i]); dbErr != nil {
			return 0, engine.Wrap(engine.KindTransaction, "layout range insert failed", dbErr).WithContext(in.Entry.Name)
		}
	}
	return id, nil
}

// classify consults the known-good then known-bad oracle, known-bad
// overriding known-good (spec.md §4.5 steps b/c).
func (p *Processor) classify(ctx context.Context, hashHex string) engine.KnownStatus {
	known := engine.Unknown
	if p.KnownGood != nil {
		if hit, err := p.KnownGood.QuickLookup(ctx, hashHex); err == nil && hit {
			known = engine.Known
		}
	}
	if p.KnownBad != nil {
		if hit, err := p.KnownBad.QuickLookup(ctx, hashHex); err == nil && hit {
			known = engine.KnownBad
		}
	}
	return known
}

// hashAttribute streams MD5 over an attribute's content (spec.md §4.5
// step a, §4.5 "Hash encoding").
func (p *Processor) hashAttribute(ctx context.Context, in EntryInput, metaAddr int64, attr engine.Attribute) (string, int64, error) {
	h := md5.New()
	var n int64
	if attr.Resident {
		written, err := h.Write(attr.ResidentData)
		if err != nil {
			return "", 0, err
		}
		n = int64(written)
	} else {
		rc, err := in.FsReader.OpenAttributeContent(ctx, metaAddr, attr.Type, attr.ID)
		if err != nil {
			return "", 0, err
		}
		defer rc.Close()
		n, err = io.Copy(h, rc)
		if err != nil {
			return "", 0, err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// baseFile builds the common File fields shared by every insert path.
func (p *Processor) baseFile(in EntryInput, parentObjID, metaAddr int64, stat engine.FileStat, name string) *engine.File {
	return &engine.File{
		ParentID:     parentObjID,
		FsID:         in.FsID,
		HasFs:        true,
		DataSourceID: in.DataSourceID,
		Name:         name,
		MetaAddr:     metaAddr,
		NameFlags:    in.Entry.NameFlags,
		MetaFlags:    stat.MetaFlags,
		Type:         stat.Type,
		Size:         stat.Size,
		Mtime:        time.Unix(stat.Mtime, 0).UTC(),
		Atime:        time.Unix(stat.Atime, 0).UTC(),
		Ctime:        time.Unix(stat.Ctime, 0).UTC(),
		Crtime:       time.Unix(stat.Crtime, 0).UTC(),
		UID:          stat.UID,
		GID:          stat.GID,
		Mode:         stat.Mode,
		Known:        engine.Unknown,
		ParentPath:   in.ParentPath,
		HasPath:      true,
	}
}

func (p *Processor) insertFile(ctx context.Context, f *engine.File) (int64, *engine.Error) {
	id, err := p.DB.AddFsFile(ctx, f)
	if err != nil {
		kind := engine.KindReadIO
		if isDuplicateKey(err) {
			kind = engine.KindTransaction
		}
		return 0, engine.Wrap(kind, "insert file row failed", err).WithContext(f.Name)
	}
	return id, nil
}

// resolveParent implements spec.md §4.5 step 2.
func (p *Processor) resolveParent(ctx context.Context, fsID int64, fsReader engine.FileSystemHandle, parentMetaAddr int64, parentPath string) (int64, *engine.Error) {
	parentStat, statErr := fsReader.Stat(ctx, parentMetaAddr)
	if statErr != nil {
		return 0, engine.Wrap(engine.KindCorruptFs, "parent stat failed", statErr)
	}
	disc := discriminatorFor(parentStat, parentPath)

	if objID, ok := p.Cache.Get(fsID, parentMetaAddr, disc); ok {
		return objID, nil
	}
	objID, err := p.DB.ResolveParent(ctx, fsID, parentMetaAddr)
	if err != nil {
		return 0, engine.Wrap(engine.KindNotFound, "parent resolution failed", err).WithContext(fmt.Sprintf("fs=%d meta=%d", fsID, parentMetaAddr))
	}
	p.Cache.Put(fsID, parentMetaAddr, disc, objID)
	enginelog.Debugf(parentPath, "parent resolved from database (cache miss)")
	return objID, nil
}

// discriminatorFor picks the NTFS on-disk sequence number when present,
// falling back to the djb2 hash of the directory's own path for every
// other family (spec.md §4.5 step 2).
func discriminatorFor(stat engine.FileStat, path string) uint64 {
	if stat.HasSequence {
		return uint64(stat.SequenceNumber)
	}
	return SequenceDiscriminator(path)
}

func (p *Processor) registerAndCount(err *engine.Error) {
	p.Errors.Register(err)
	p.Metrics.IncErrors()
}

// isDuplicateKey is a best-effort classifier; concrete backends wrap
// their driver's unique-constraint error in an *engine.Error of Kind
// Transaction before it reaches here, so this only matters for the
// rare backend that returns the raw driver error.
func isDuplicateKey(err error) bool {
	var e *engine.Error
	if as, ok := err.(*engine.Error); ok {
		e = as
	}
	return e != nil && e.Kind == engine.KindTransaction
}
