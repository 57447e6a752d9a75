package tskcmd

import (
	"context"

	"github.com/tskcat/engine/engine"
)

// noDecoder is the default file-system reader: the engine only defines
// this as a capability interface (spec.md §6); concrete FAT/NTFS/ExtX
// decoders are external collaborators this repository does not ship.
// ImageWalker treats a failed OpenFileSystem as "no recognized file
// system here", registers a CorruptFs error and continues (it is not
// fatal). The CLI wires no volume-system reader either, so with
// noDecoder an image gets only its Image row catalogued: no
// VolumeSystem, Volume, FileSystem or File rows. Passing a real
// decoder in place of noDecoder is how a deployment adds FS support.
type noDecoder struct{}

func (noDecoder) OpenFileSystem(ctx context.Context, img engine.ImageHandle, byteOffset int64) (engine.FileSystemHandle, error) {
	return nil, engine.ErrUnsupported
}
