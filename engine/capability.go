package engine

import (
	"context"
	"io"
)

// ImageReader is the external image-format capability (spec.md §6).
// Implementations handle raw, split, EWF, AFF, or pool/APFS-container
// images; the engine only ever sees bit-exact, offset-stable reads.
type ImageReader interface {
	Open(ctx context.Context, parts []string, imageType ImageType, sectorSize int) (ImageHandle, error)
}

// ImageHandle is an opened image, scoped to one ingest.
type ImageHandle interface {
	Read(ctx context.Context, byteOffset int64, length int) ([]byte, error)
	Size() int64
	Close() error
}

// VolumeInfo is what the volume-system reader yields for one volume.
type VolumeInfo struct {
	SlotAddr    int64
	StartBlock  int64
	LengthBlock int64
	Description string
	Flags       VolumeFlag
}

// VolumeSystemReader opens the volume-system layer of an image, if any.
type VolumeSystemReader interface {
	// OpenVolumeSystem returns ErrNotFound (wrapped) if the image carries
	// no recognized volume system at the given byte offset.
	OpenVolumeSystem(ctx context.Context, img ImageHandle, byteOffset int64) (VolumeSystemHandle, error)
}

// VolumeSystemHandle enumerates the volumes of one volume system.
type VolumeSystemHandle interface {
	Type() VsType
	BlockSize() int
	Volumes() []VolumeInfo
	Close() error
}

// FileSystemReader opens a file system at a byte offset within a volume
// or directly on the image (spec.md §6 "Volume-system / file-system
// reader capability"). Concrete FAT/NTFS/ExtX/... decoders are external
// collaborators; the engine only calls through this interface.
type FileSystemReader interface {
	OpenFileSystem(ctx context.Context, img ImageHandle, byteOffset int64) (FileSystemHandle, error)
}

// FileSystemHandle is an opened file system.
type FileSystemHandle interface {
	Type() FsType
	BlockSize() int
	BlockCount() int64
	RootInode() int64
	FirstInode() int64
	LastInode() int64
	IsFAT() bool

	// DefaultAttrType is the attribute type considered "default" for
	// this file-system family (e.g. NTFS $DATA), the only attribute
	// kind FileProcessor persists and hashes (spec.md §4.5 step 4).
	DefaultAttrType() int

	// OpenDir iterates the entries of the directory at metaAddr. The
	// returned slice order must be stable across repeated calls on the
	// same image (spec.md §4.4 "Ordering"), not necessarily sorted.
	OpenDir(ctx context.Context, metaAddr int64) ([]DirEntry, error)

	// Attributes returns the attributes of the file at metaAddr with the
	// given sequence/name discriminator already resolved by the caller.
	Attributes(ctx context.Context, metaAddr int64) ([]Attribute, error)

	// Stat returns the metadata fields of the file at metaAddr, excluding
	// name/path (those are supplied by the directory walk).
	Stat(ctx context.Context, metaAddr int64) (FileStat, error)

	// OrphanDirMetaAddr returns the synthetic $OrphanFiles directory's
	// meta-address for FAT variants, or (0, false) if not applicable.
	OrphanDirMetaAddr() (int64, bool)

	// UnallocatedBlocks yields the unallocated blocks of the file system
	// in ascending address order.
	UnallocatedBlocks(ctx context.Context) ([]int64, error)

	// OpenAttributeContent opens the content of a non-resident attribute
	// for streaming (e.g. for content hashing). Resident attributes
	// carry their bytes directly on Attribute.ResidentData and never
	// need this.
	OpenAttributeContent(ctx context.Context, metaAddr int64, attrType, attrID int) (io.ReadCloser, error)

	Close() error
}

// FileStat is the subset of file metadata a file-system reader exposes
// for a single metadata-address record.
type FileStat struct {
	NameFlags NameFlag
	MetaFlags NameFlag
	Type      FileType
	Size      int64
	Mtime     int64 // epoch seconds
	Atime     int64
	Ctime     int64
	Crtime    int64
	UID       int64
	GID       int64
	Mode      int
	// SequenceNumber is the on-disk sequence number used as the parent
	// discriminator for NTFS-family file systems (spec.md §4.5 step 2).
	SequenceNumber int64
	HasSequence    bool
}

// KnownFileOracle is the external hash-database lookup capability
// (spec.md §6 "Known-file oracle").
type KnownFileOracle interface {
	QuickLookup(ctx context.Context, hashHex string) (Hit bool, err error)
	Close() error
}
