package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// buildDataAttr materializes a version's data fork: one filler run covering
// the whole file size for holes, overlaid with one run per chunk_id that
// survives latest-write-wins resolution, truncated to the header's
// declared file_size.
//
// AttrRun.Addr is expressed here as the absolute byte offset of the
// chunk's page within the image (not a page index), with the driver's
// BlockSize() fixed at 1 byte, so the generic FileWalk/AttrRead helpers in
// pkg/tsk need no YAFFS2-specific addressing logic: addr*blockSize is
// already the byte offset to read from.
func (c *Cache) buildDataAttr(pageSize int64, ver CacheVersion, fileSize int64) *tsk.Attr {
	if fileSize < 0 {
		fileSize = 0
	}
	totalChunks := (fileSize + pageSize - 1) / pageSize

	addrByChunk := make([]int64, totalChunks)
	for i := range addrByChunk {
		addrByChunk[i] = -1
	}

	seen := make(map[uint32]bool)
	for ci := ver.LastChunk; ci != noIndex; {
		chunk := c.Chunks[ci]
		if chunk.ChunkID > 0 && !seen[chunk.ChunkID] {
			seen[chunk.ChunkID] = true
			if int64(chunk.ChunkID) <= totalChunks {
				addrByChunk[chunk.ChunkID-1] = chunk.Offset
			}
		}
		if ci == ver.FirstChunk {
			break
		}
		ci = chunk.Prev
	}

	attr := &tsk.Attr{Type: tsk.AttrTypeData, Size: fileSize}
	var i int64
	for i < totalChunks {
		if addrByChunk[i] < 0 {
			start := i
			for i < totalChunks && addrByChunk[i] < 0 {
				i++
			}
			attr.Runs = append(attr.Runs, tsk.AttrRun{
				Offset: start * pageSize,
				Len:    (i - start) * pageSize,
				Flags:  tsk.RunSparse,
			})
			continue
		}
		start := i
		addr := addrByChunk[i]
		for i < totalChunks && addrByChunk[i] == addr+(i-start)*pageSize {
			i++
		}
		attr.Runs = append(attr.Runs, tsk.AttrRun{
			Offset: start * pageSize,
			Addr:   tsk.BlockAddr(addr),
			Len:    (i - start) * pageSize,
		})
	}

	return attr
}
