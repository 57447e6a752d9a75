// Package memfsreader is a synthetic, in-memory FileSystemReader used
// to exercise ImageWalker/FsWalker/FileProcessor without a real
// on-disk image or an external file-system decoder. It is also handy
// as a fixture builder in other packages' tests.
package memfsreader

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/tskcat/engine/engine"
)

// Node is one file or directory in the synthetic tree.
type Node struct {
	MetaAddr int64
	Name     string
	Type     engine.FileType
	Attrs    []engine.Attribute
	Content  map[int]map[int][]byte // attrType -> attrID -> bytes, for non-resident attrs
	Stat     engine.FileStat
}

// Builder assembles a synthetic file system before use.
type Builder struct {
	fsType          engine.FsType
	blockSize       int
	blockCount      int64
	rootInode       int64
	firstInode      int64
	lastInode       int64
	isFAT           bool
	defaultAttrType int
	orphanMetaAddr  int64
	hasOrphan       bool

	nodes    map[int64]*Node
	children map[int64][]int64
}

// NewBuilder starts a synthetic file system with the given root inode.
func NewBuilder(fsType engine.FsType, rootInode int64) *Builder {
	return &Builder{
		fsType:     fsType,
		blockSize:  4096,
		rootInode:  rootInode,
		firstInode: rootInode,
		lastInode:  rootInode,
		nodes:      map[int64]*Node{},
		children:   map[int64][]int64{},
	}
}

func (b *Builder) WithBlockSize(n int) *Builder  { b.blockSize = n; return b }
func (b *Builder) WithBlockCount(n int64) *Builder { b.blockCount = n; return b }
func (b *Builder) WithFAT(isFAT bool) *Builder     { b.isFAT = isFAT; return b }
func (b *Builder) WithOrphanDir(metaAddr int64) *Builder {
	b.orphanMetaAddr, b.hasOrphan = metaAddr, true
	return b
}

// AddDir registers a directory node under parentMetaAddr (use the
// builder's root inode for the top level).
func (b *Builder) AddDir(parentMetaAddr int64, metaAddr int64, name string) *Builder {
	b.nodes[metaAddr] = &Node{MetaAddr: metaAddr, Name: name, Type: engine.FileDirectory}
	if metaAddr != b.rootInode {
		b.children[parentMetaAddr] = append(b.children[parentMetaAddr], metaAddr)
	}
	b.trackInode(metaAddr)
	return b
}

// AddFile registers a regular file node with one default-attribute
// stream of content.
func (b *Builder) AddFile(parentMetaAddr int64, metaAddr int64, name string, content []byte) *Builder {
	b.nodes[metaAddr] = &Node{
		MetaAddr: metaAddr,
		Name:     name,
		Type:     engine.FileRegular,
		Attrs: []engine.Attribute{
			{Type: b.defaultAttrType, ID: 0, Name: "", Resident: false, Size: int64(len(content))},
		},
		Content: map[int]map[int][]byte{b.defaultAttrType: {0: content}},
		Stat:    engine.FileStat{Type: engine.FileRegular, Size: int64(len(content))},
	}
	b.children[parentMetaAddr] = append(b.children[parentMetaAddr], metaAddr)
	b.trackInode(metaAddr)
	return b
}

func (b *Builder) trackInode(metaAddr int64) {
	if metaAddr < b.firstInode {
		b.firstInode = metaAddr
	}
	if metaAddr > b.lastInode {
		b.lastInode = metaAddr
	}
}

// Build finalizes the synthetic file system into a usable handle.
func (b *Builder) Build() *Handle {
	root, ok := b.nodes[b.rootInode]
	if !ok {
		root = &Node{MetaAddr: b.rootInode, Name: "", Type: engine.FileDirectory}
		b.nodes[b.rootInode] = root
	}
	return &Handle{
		fsType:          b.fsType,
		blockSize:       b.blockSize,
		blockCount:      b.blockCount,
		rootInode:       b.rootInode,
		firstInode:      b.firstInode,
		lastInode:       b.lastInode,
		isFAT:           b.isFAT,
		defaultAttrType: b.defaultAttrType,
		orphanMetaAddr:  b.orphanMetaAddr,
		hasOrphan:       b.hasOrphan,
		nodes:           b.nodes,
		children:        b.children,
	}
}

// Reader implements engine.FileSystemReader by handing back a single
// prebuilt Handle regardless of byte offset, for tests that only ever
// open one file system.
type Reader struct {
	Handle *Handle
}

func (r Reader) OpenFileSystem(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
	return r.Handle, nil
}

// Handle is a built synthetic file system, implementing
// engine.FileSystemHandle.
type Handle struct {
	fsType          engine.FsType
	blockSize       int
	blockCount      int64
	rootInode       int64
	firstInode      int64
	lastInode       int64
	isFAT           bool
	defaultAttrType int
	orphanMetaAddr  int64
	hasOrphan       bool

	nodes    map[int64]*Node
	children map[int64][]int64
}

func (h *Handle) Type() engine.FsType     { return h.fsType }
func (h *Handle) BlockSize() int          { return h.blockSize }
func (h *Handle) BlockCount() int64       { return h.blockCount }
func (h *Handle) RootInode() int64        { return h.rootInode }
func (h *Handle) FirstInode() int64       { return h.firstInode }
func (h *Handle) LastInode() int64        { return h.lastInode }
func (h *Handle) IsFAT() bool             { return h.isFAT }
func (h *Handle) DefaultAttrType() int    { return h.defaultAttrType }

func (h *Handle) OpenDir(ctx context.Context, metaAddr int64) ([]engine.DirEntry, error) {
	entries := []engine.DirEntry{
		{Name: ".", MetaAddr: metaAddr, ParentMetaAddr: metaAddr, NameFlags: engine.NameAllocated, Type: engine.FileDirectory},
		{Name: "..", MetaAddr: metaAddr, ParentMetaAddr: metaAddr, NameFlags: engine.NameAllocated, Type: engine.FileDirectory},
	}
	for _, childAddr := range h.children[metaAddr] {
		n, ok := h.nodes[childAddr]
		if !ok {
			continue
		}
		entries = append(entries, engine.DirEntry{
			Name: n.Name, MetaAddr: n.MetaAddr, ParentMetaAddr: metaAddr,
			NameFlags: engine.NameAllocated, Type: n.Type,
		})
	}
	return entries, nil
}

func (h *Handle) Attributes(ctx context.Context, metaAddr int64) ([]engine.Attribute, error) {
	n, ok := h.nodes[metaAddr]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return n.Attrs, nil
}

func (h *Handle) Stat(ctx context.Context, metaAddr int64) (engine.FileStat, error) {
	n, ok := h.nodes[metaAddr]
	if !ok {
		return engine.FileStat{}, engine.ErrNotFound
	}
	return n.Stat, nil
}

func (h *Handle) OrphanDirMetaAddr() (int64, bool) { return h.orphanMetaAddr, h.hasOrphan }

func (h *Handle) UnallocatedBlocks(ctx context.Context) ([]int64, error) {
	return nil, nil
}

func (h *Handle) OpenAttributeContent(ctx context.Context, metaAddr int64, attrType, attrID int) (io.ReadCloser, error) {
	n, ok := h.nodes[metaAddr]
	if !ok {
		return nil, engine.ErrNotFound
	}
	byID, ok := n.Content[attrType]
	if !ok {
		return nil, engine.ErrNotFound
	}
	data, ok := byID[attrID]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (h *Handle) Close() error { return nil }
