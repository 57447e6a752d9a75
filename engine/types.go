// Package engine defines the core object graph, capability interfaces,
// and persistence surface of the image-cataloguing pipeline. Task
// packages (process, walk, coalesce, ingest, casemgr) build on it; the
// backend packages implement DbFacade for a specific SQL dialect.
package engine

import "time"

// ObjectType identifies the concrete kind of an Object row (spec.md §3
// invariant 1: every entity has exactly one Object row whose type
// matches its concrete kind).
type objectTypeChoices struct{}

func (objectTypeChoices) Choices() []string {
	return []string{
		ObjImage:      "Image",
		ObjVolumeSystem: "VolumeSystem",
		ObjVolume:     "Volume",
		ObjFileSystem: "FileSystem",
		ObjFile:       "File",
	}
}

type ObjectType = Enum[objectTypeChoices]

const (
	ObjImage ObjectType = iota
	ObjVolumeSystem
	ObjVolume
	ObjFileSystem
	ObjFile
)

// VolumeFlag is a bitmask over Allocated/Unallocated/Meta, combined to
// form filter sets (e.g. the default "Allocated | Unallocated").
type VolumeFlag uint8

const (
	VolAllocated VolumeFlag = 1 << iota
	VolUnallocated
	VolMeta
)

func (f VolumeFlag) Has(bit VolumeFlag) bool { return f&bit != 0 }

// DefaultVolumeFilter is the default volume-system filter: allocated and
// unallocated volumes are descended into (so unallocated regions reach
// UnallocCoalescer); meta volumes are not.
const DefaultVolumeFilter = VolAllocated | VolUnallocated

// NameFlag marks whether a directory entry name is allocated or was
// recovered from a deleted/unallocated slot.
type NameFlag uint8

const (
	NameAllocated NameFlag = 1 << iota
	NameUnallocated
)

// FileType is the type column of a File row.
type fileTypeChoices struct{}

func (fileTypeChoices) Choices() []string {
	return []string{
		FileRegular:     "Regular",
		FileDirectory:   "Directory",
		FileVirtualDir:  "VirtualDir",
		FileCarved:      "Carved",
		FileUnallocated: "UnallocatedBlocks",
		FileUnused:      "UnusedBlocks",
		FileSlack:       "Slack",
		FileDerived:     "Derived",
		FileLocal:       "Local",
	}
}

type FileType = Enum[fileTypeChoices]

const (
	FileRegular FileType = iota
	FileDirectory
	FileVirtualDir
	FileCarved
	FileUnallocated
	FileUnused
	FileSlack
	FileDerived
	FileLocal
)

// KnownStatus is the known/known-bad classification of a file's hash.
type knownStatusChoices struct{}

func (knownStatusChoices) Choices() []string {
	return []string{
		Unknown:  "Unknown",
		Known:    "Known",
		KnownBad: "KnownBad",
	}
}

type KnownStatus = Enum[knownStatusChoices]

const (
	Unknown KnownStatus = iota
	Known
	KnownBad
)

// ImageType names the image-format family (raw, split, EWF, AFF, pool).
// The engine treats this as an opaque tag supplied by the image-reader
// capability; it has no behavior of its own.
type ImageType string

// VsType names the volume-system family (DOS, GPT, Mac, BSD, ...).
type VsType string

// FsType names the file-system family (FAT, NTFS, ExtX, HFS+, ...).
type FsType string

// Image is the top-level catalogued entity.
type Image struct {
	ID         int64
	Type       ImageType
	SectorSize int
	Size       int64
	Hash       string // empty if not computed
	DeviceID   string // opaque, unique across cases; empty if unset
	Timezone   string
	Parts      []string // ordered image part paths
}

// VolumeSystem sits directly under an Image.
type VolumeSystem struct {
	ID         int64
	ImageID    int64
	Type       VsType
	ByteOffset int64
	BlockSize  int
}

// Volume is a contiguous byte range inside an image that may contain a
// file system.
type Volume struct {
	ID          int64
	VsID        int64
	SlotAddr    int64
	StartBlock  int64
	LengthBlock int64
	Description string
	Flags       VolumeFlag
}

// FileSystem organises a volume's (or an image's) bytes into files.
//
// Exactly one of VolumeID/ImageID is set (spec.md §3: "parent Volume or
// Image"); modelled as two nullable-by-zero fields rather than an
// interface{} parent so callers never need a type switch to read the
// byte offset back out.
type FileSystem struct {
	ID         int64
	ParentID   int64 // the Object id of the parent (Volume or Image)
	VolumeID   int64 // 0 if filesystem sits directly on the image
	ImageID    int64 // 0 if filesystem sits on a volume
	Type       FsType
	ByteOffset int64
	BlockSize  int
	BlockCount int64
	RootInode  int64
	FirstInode int64
	LastInode  int64
}

// File is the densest entity: spec.md §3 "File" row.
type File struct {
	ID           int64
	ParentID     int64 // parent File (directory) object id; the FileSystem object id for the fs root
	FsID         int64 // 0 if this file has no file system (virtual/image-wide)
	HasFs        bool
	DataSourceID int64 // the owning Image id
	Name         string
	AttrType     int
	AttrID       int
	MetaAddr     int64
	NameFlags    NameFlag
	MetaFlags    NameFlag
	Type         FileType
	Size         int64
	Mtime        time.Time
	Atime        time.Time
	Ctime        time.Time
	Crtime       time.Time
	UID          int64
	GID          int64
	Mode         int
	Hash         string // 32-char lowercase hex, "" if absent
	Known        KnownStatus
	ParentPath   string // begins and ends with '/'
	HasLayout    bool
	HasPath      bool
}

// LayoutRange is one byte-granular run recorded against a File.
type LayoutRange struct {
	FileID    int64
	ByteStart int64
	ByteLen   int64
	Sequence  int
}

// Object is the union identity row every concrete entity has exactly
// one of (spec.md §3 invariant 1 and 2).
type Object struct {
	ID       int64
	ParentID int64 // 0 means no parent (only the Image root has none)
	Type     ObjectType
}

// Run is a contiguous allocation: (starting block, length in blocks).
// Sparse runs carry no backing storage and are omitted from
// LayoutRanges but still occupy a slot in the run list (spec.md §4.5e).
type Run struct {
	StartBlock int64
	LengthBlk  int64
	Sparse     bool
}

// Attribute is a named stream of bytes belonging to a file.
type Attribute struct {
	Type       int
	ID         int
	Name       string // "" for the default/unnamed attribute
	Resident   bool
	Size       int64
	Runs       []Run  // only meaningful if !Resident
	ResidentData []byte // only meaningful if Resident
}

// DirEntry is one entry yielded while iterating a directory.
type DirEntry struct {
	Name           string
	MetaAddr       int64
	ParentMetaAddr int64
	NameFlags      NameFlag
	Type           FileType
}
