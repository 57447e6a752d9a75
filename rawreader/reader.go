// Package rawreader implements the ImageReader capability for raw and
// split-raw (multi-part) images: plain byte-offset reads across one
// or more on-disk files concatenated end to end.
package rawreader

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/tskcat/engine/engine"
)

// Reader opens raw/split-raw images from local files.
type Reader struct{}

// New builds a raw image reader. There is no configuration: every
// part is opened read-only and concatenated in the order given.
func New() *Reader { return &Reader{} }

func (Reader) Open(ctx context.Context, parts []string, imageType engine.ImageType, sectorSize int) (engine.ImageHandle, error) {
	if len(parts) == 0 {
		return nil, engine.NewError(engine.KindArgument, "raw image requires at least one part")
	}
	h := &Handle{}
	var offset int64
	for _, p := range parts {
		f, err := os.Open(p)
		if err != nil {
			h.Close()
			return nil, engine.Wrap(engine.KindReadIO, "open image part", err).WithContext(p)
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			h.Close()
			return nil, engine.Wrap(engine.KindReadIO, "stat image part", err).WithContext(p)
		}
		h.parts = append(h.parts, part{f: f, start: offset, size: fi.Size()})
		offset += fi.Size()
	}
	h.size = offset
	return h, nil
}

type part struct {
	f     *os.File
	start int64
	size  int64
}

// Handle is an opened raw/split-raw image.
type Handle struct {
	parts []part
	size  int64
}

func (h *Handle) Size() int64 { return h.size }

// Read returns exactly length bytes starting at byteOffset, spanning
// part boundaries transparently. Returns an error if the requested
// range runs past the end of the image.
func (h *Handle) Read(ctx context.Context, byteOffset int64, length int) ([]byte, error) {
	if byteOffset < 0 || byteOffset+int64(length) > h.size {
		return nil, engine.NewError(engine.KindArgument, "read out of image bounds")
	}
	out := make([]byte, length)
	remaining := out
	pos := byteOffset

	idx := sort.Search(len(h.parts), func(i int) bool {
		return h.parts[i].start+h.parts[i].size > pos
	})
	for len(remaining) > 0 && idx < len(h.parts) {
		p := h.parts[idx]
		localOffset := pos - p.start
		n := p.size - localOffset
		if int64(len(remaining)) < n {
			n = int64(len(remaining))
		}
		if _, err := p.f.ReadAt(remaining[:n], localOffset); err != nil && err != io.EOF {
			return nil, engine.Wrap(engine.KindReadIO, "read image part", err)
		}
		remaining = remaining[n:]
		pos += n
		idx++
	}
	return out, nil
}

func (h *Handle) Close() error {
	var firstErr error
	for _, p := range h.parts {
		if err := p.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
