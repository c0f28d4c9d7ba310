// Package image defines the small boundary contract the forensic engine
// consumes from whatever is holding the raw bytes of a disk or flash image —
// a plain file, a carved region, or an in-memory buffer in tests. The
// engine never extracts archives or walks containers itself.
//
// Image wraps an io.ReaderAt-backed byte-addressable source with a known
// size, the one abstraction every filesystem driver in this module reads
// through.
package image

import (
	"errors"
	"io"
	"os"
)

// Errors surfaced when an operation would be legal on a full random-access
// file but impossible on a narrower stream-only source.
var (
	ErrNoSeek = errors.New("image: underlying source does not support seeking")
)

// Image is the external collaborator consumed by every driver. It is
// intentionally the smallest interface that can back both a local file and a
// carved/streamed region: random-addressed reads plus enough metadata to
// bound the address space.
type Image interface {
	// ReadAt reads len(buf) bytes starting at offset. It follows
	// io.ReaderAt's contract: a short read before EOF is an error.
	ReadAt(offset int64, buf []byte) (n int, err error)
	// Size returns the total addressable byte length of the image.
	Size() int64
	// SectorSize returns the image's native sector size in bytes, used by
	// drivers that need to align reads (XFS superblock search, YAFFS2
	// spare-area sampling). Implementations that don't know better return
	// 512.
	SectorSize() int64
	// Close releases any resources (open file handles, etc).
	Close() error
}

// RawImage is the default Image implementation: a plain os.File (or any
// io.ReaderAt) addressed directly, with no partitioning or container
// unwrapping. This is the concrete collaborator cmd/tskutil uses; archive
// and container formats are expected to be unwrapped by the caller before
// handing the engine a RawImage-compatible reader.
type RawImage struct {
	f          *os.File
	readerAt   io.ReaderAt
	size       int64
	sectorSize int64
}

// Open opens path as a RawImage. sectorSize of 0 defaults to 512.
func Open(path string, sectorSize int64) (*RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if sectorSize == 0 {
		sectorSize = 512
	}

	return &RawImage{f: f, size: fi.Size(), sectorSize: sectorSize}, nil
}

// NewRawImage wraps an already-open io.ReaderAt (e.g. a carved region handed
// in by an external extraction pipeline) as a RawImage of the given size.
func NewRawImage(r io.ReaderAt, size, sectorSize int64) *RawImage {
	if sectorSize == 0 {
		sectorSize = 512
	}
	return &RawImage{readerAt: r, size: size, sectorSize: sectorSize}
}

func (r *RawImage) ReadAt(offset int64, buf []byte) (int, error) {
	if r.f != nil {
		return r.f.ReadAt(buf, offset)
	}
	return r.readerAt.ReadAt(buf, offset)
}

func (r *RawImage) Size() int64 { return r.size }

func (r *RawImage) SectorSize() int64 { return r.sectorSize }

func (r *RawImage) Close() error {
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}
