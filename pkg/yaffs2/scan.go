package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/endian"
	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// Scan reads img from offset 0 in strides of layout.chunkSize(), validating
// each chunk's spare tags and threading valid chunks into per-object chunk
// lists. It does not build version chains; call BuildVersions on the
// result to do that.
func Scan(img image.Image, layout SpareLayout) (*Cache, error) {
	c := newCache(layout)

	chunkSize := layout.chunkSize()
	if chunkSize <= 0 {
		return nil, tsk.Errorf(tsk.KindArg, "yaffs2: invalid chunk size (page=%d spare=%d)", layout.PageSize, layout.SpareSize)
	}

	size := img.Size()
	page := make([]byte, layout.PageSize)
	spare := make([]byte, layout.SpareSize)

	for off := int64(0); off+chunkSize <= size; off += chunkSize {
		if _, err := img.ReadAt(off+layout.PageSize, spare); err != nil {
			return nil, tsk.WrapErr(tsk.KindRead, err, "reading spare area at offset %d", off)
		}

		seq := endian.LittleEndian.Uint32(spare[layout.SeqOffset : layout.SeqOffset+4])
		objID := endian.LittleEndian.Uint32(spare[layout.ObjIDOffset : layout.ObjIDOffset+4])
		chunkID := endian.LittleEndian.Uint32(spare[layout.ChunkIDOffset : layout.ChunkIDOffset+4])

		if seq < seqMin || seq > seqMax {
			continue
		}
		if objID == 0 || objID > ObjIDMax {
			continue
		}

		isHeader := chunkID == headerChunkID
		var parentID uint32

		if isHeader {
			if _, err := img.ReadAt(off, page[:headerRecordSize]); err != nil {
				return nil, tsk.WrapErr(tsk.KindRead, err, "reading header page at offset %d", off)
			}
			parentID = endian.LittleEndian.Uint32(page[4:8])
			if objID == ObjIDRoot && parentID == ObjIDRoot {
				parentID = 0
			}
		}

		idx := len(c.Chunks)
		c.Chunks = append(c.Chunks, CacheChunk{
			Offset:   off,
			Seq:      seq,
			ObjID:    objID,
			ChunkID:  chunkID,
			ParentID: parentID,
			IsHeader: isHeader,
			Prev:     noIndex,
			Next:     noIndex,
		})

		c.threadChunk(idx, objID)
		if objID > c.MaxObjID {
			c.MaxObjID = objID
		}
	}

	return c, nil
}

// threadChunk appends chunk idx to object objID's chunk list (creating the
// object if this is its first chunk) and to the global, objID-sorted object
// list.
func (c *Cache) threadChunk(idx int, objID uint32) {
	objIdx, ok := c.objectByID(objID)
	if !ok {
		objIdx = len(c.Objects)
		c.Objects = append(c.Objects, CacheObject{
			ObjID:         objID,
			FirstChunk:    idx,
			LastChunk:     idx,
			LatestVersion: noIndex,
			Next:          noIndex,
		})
		c.objIndex[objID] = objIdx
		c.insertObjectSorted(objIdx)
		return
	}

	obj := &c.Objects[objIdx]
	tail := obj.LastChunk
	c.Chunks[tail].Next = idx
	c.Chunks[idx].Prev = tail
	obj.LastChunk = idx
}

// insertObjectSorted splices object index objIdx into c.Objects' Next chain
// so it stays sorted ascending by ObjID. It assumes objIdx was just appended
// to c.Objects and its Next field is still noIndex.
func (c *Cache) insertObjectSorted(objIdx int) {
	objID := c.Objects[objIdx].ObjID

	if c.objHead == noIndex || c.Objects[c.objHead].ObjID > objID {
		c.Objects[objIdx].Next = c.objHead
		c.objHead = objIdx
		return
	}
	cur := c.objHead
	for c.Objects[cur].Next != noIndex && c.Objects[c.Objects[cur].Next].ObjID < objID {
		cur = c.Objects[cur].Next
	}
	c.Objects[objIdx].Next = c.Objects[cur].Next
	c.Objects[cur].Next = objIdx
}
