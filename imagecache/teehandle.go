// Package imagecache wraps an engine.ImageHandle so every byte range
// the engine reads from the source image is also written to a local
// cache file at the same offset (spec.md §4.2 configure()'s
// image_writer_path: "if set, the engine also writes a cache copy of
// the image as it reads"). The cache file only ever receives the
// ranges the walk actually touches -- it is a tee, not a full copy.
package imagecache

import (
	"context"
	"os"

	"github.com/tskcat/engine/engine"
	"github.com/tskcat/engine/enginelog"
)

// TeeHandle wraps an ImageHandle, writing every Read's result to
// cacheFile at the same byte offset before returning it to the caller.
type TeeHandle struct {
	engine.ImageHandle
	cache *os.File
}

// Wrap opens path for writing (truncating any prior contents) and
// returns an ImageHandle that tees reads of inner into it. The cache
// file is best-effort: a write failure is logged and otherwise
// ignored, since the engine's own read already succeeded and the
// ingest should not fail just because its cache copy couldn't keep up.
func Wrap(inner engine.ImageHandle, path string) (engine.ImageHandle, *engine.Error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, engine.Wrap(engine.KindReadIO, "image writer cache create failed", err).WithContext(path)
	}
	return &TeeHandle{ImageHandle: inner, cache: f}, nil
}

func (h *TeeHandle) Read(ctx context.Context, byteOffset int64, length int) ([]byte, error) {
	buf, err := h.ImageHandle.Read(ctx, byteOffset, length)
	if err != nil {
		return buf, err
	}
	if _, werr := h.cache.WriteAt(buf, byteOffset); werr != nil {
		enginelog.Logf(byteOffset, "image writer cache write failed: %v", werr)
	}
	return buf, nil
}

func (h *TeeHandle) Close() error {
	cerr := h.cache.Close()
	ierr := h.ImageHandle.Close()
	if ierr != nil {
		return ierr
	}
	if cerr != nil {
		return engine.Wrap(engine.KindReadIO, "image writer cache close failed", cerr)
	}
	return nil
}
