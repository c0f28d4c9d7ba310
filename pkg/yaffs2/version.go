package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/endian"
	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// versionBuilder accumulates one in-progress version while walking an
// object's chunk list.
type versionBuilder struct {
	seq            uint32
	headerChunk    int
	fallbackHeader bool
	hasRealHeader  bool
	isShrink       bool
	firstChunk     int
	lastChunk      int
}

// BuildVersions folds every object's chunk list into version chains and
// finalizes the cache's MaxVersion/LastInum bookkeeping. It must run once,
// after Scan, before the cache is used for lookups.
func BuildVersions(img image.Image, c *Cache) error {
	for oi := c.objHead; oi != noIndex; oi = c.Objects[oi].Next {
		if err := c.buildObjectVersions(img, oi); err != nil {
			return err
		}
		if v := c.Objects[oi].LatestVersion; v != noIndex && c.Versions[v].VersionNumber > c.MaxVersion {
			c.MaxVersion = c.Versions[v].VersionNumber
		}
	}

	c.LastInum = uint32(EncodeInum(c.MaxVersion, c.MaxObjID)) + 1
	return nil
}

func (c *Cache) buildObjectVersions(img image.Image, objIdx int) error {
	obj := &c.Objects[objIdx]

	var built []int // indices into c.Versions, oldest first
	var cur *versionBuilder

	flush := func(b *versionBuilder) {
		if b == nil {
			return
		}
		idx := len(c.Versions)
		c.Versions = append(c.Versions, CacheVersion{
			SeqNumber:   b.seq,
			HeaderChunk: b.headerChunk,
			FirstChunk:  b.firstChunk,
			LastChunk:   b.lastChunk,
			IsShrink:    b.isShrink,
			Prior:       noIndex,
		})
		built = append(built, idx)
	}

	for ci := obj.FirstChunk; ci != noIndex; ci = c.Chunks[ci].Next {
		chunk := c.Chunks[ci]

		if cur == nil {
			cur = &versionBuilder{seq: chunk.Seq, headerChunk: noIndex, firstChunk: ci, lastChunk: ci}
		} else if chunk.Seq != cur.seq {
			if cur.hasRealHeader {
				flush(cur)
				cur = &versionBuilder{seq: chunk.Seq, headerChunk: noIndex, firstChunk: ci, lastChunk: ci}
			} else {
				cur.seq = chunk.Seq
			}
		}
		cur.lastChunk = ci

		if chunk.IsHeader {
			next, err := c.foldHeaderChunk(img, cur, ci, chunk, flush)
			if err != nil {
				return err
			}
			cur = next
		}
	}
	flush(cur)

	// Thread built[] latest-to-earliest via Prior and assign gap-free
	// version numbers 1..N, oldest = 1.
	var prior = noIndex
	for n, idx := range built {
		c.Versions[idx].VersionNumber = uint32(n + 1)
		c.Versions[idx].Prior = prior
		prior = idx
	}
	if len(built) > 0 {
		obj.LatestVersion = built[len(built)-1]
	}
	return nil
}

// foldHeaderChunk applies the header-chunk folding rules: real headers
// become the version's header (replacing a fallback, or de-noising an
// identically named directory header in place), Unlinked/Deleted headers
// only ever serve as a fallback until a real header arrives. It returns the
// versionBuilder that should become (or remain) the active one: usually cur
// itself, mutated in place, but a fresh builder when a second distinct real
// header forces a new version.
func (c *Cache) foldHeaderChunk(img image.Image, cur *versionBuilder, ci int, chunk CacheChunk, flush func(*versionBuilder)) (*versionBuilder, error) {
	isFallback := chunk.ParentID == ObjIDUnlinked || chunk.ParentID == ObjIDDeleted

	if isFallback {
		if cur.headerChunk == noIndex {
			cur.headerChunk = ci
			cur.fallbackHeader = true
		}
		return cur, nil
	}

	if cur.headerChunk == noIndex || cur.fallbackHeader {
		cur.headerChunk = ci
		cur.fallbackHeader = false
		cur.hasRealHeader = true
		cur.isShrink = c.readIsShrink(img, chunk.Offset)
		return cur, nil
	}

	oldPage, err := c.readHeaderPage(img, cur.headerChunk)
	if err != nil {
		return nil, err
	}
	newPage, err := c.readHeaderPage(img, ci)
	if err != nil {
		return nil, err
	}
	oldHdr := parseHeader(oldPage)
	newHdr := parseHeader(newPage)

	if oldHdr.ObjType == ObjTypeDirectory && newHdr.ObjType == ObjTypeDirectory && oldHdr.Name == newHdr.Name {
		// De-noising: a repeat directory header with the same name replaces
		// the old header in place rather than starting a new version.
		cur.headerChunk = ci
		return cur, nil
	}

	// A second distinct real header within the same sequence number: treat
	// it as the start of a new version.
	flush(cur)
	return &versionBuilder{
		seq: chunk.Seq, headerChunk: ci, hasRealHeader: true,
		isShrink: c.readIsShrink(img, chunk.Offset),
		firstChunk: ci, lastChunk: ci,
	}, nil
}

// readIsShrink reads the trailing is_shrink flag from a header chunk's
// page. It reads directly from the image rather than through the
// core-field page buffer parseHeader uses, since is_shrink sits well past
// the fields every header carries; a page size too small to hold it
// degrades to false rather than reading past the chunk into its spare
// area or the next chunk.
func (c *Cache) readIsShrink(img image.Image, chunkOffset int64) bool {
	if c.Layout.PageSize < headerShrinkOff+4 {
		return false
	}
	buf := make([]byte, 4)
	if _, err := img.ReadAt(chunkOffset+headerShrinkOff, buf); err != nil {
		return false
	}
	return endian.LittleEndian.Uint32(buf) != 0
}

func (c *Cache) readHeaderPage(img image.Image, chunkIdx int) ([]byte, error) {
	page := make([]byte, headerRecordSize)
	off := c.Chunks[chunkIdx].Offset
	if _, err := img.ReadAt(off, page); err != nil {
		return nil, tsk.WrapErr(tsk.KindRead, err, "reading header page at offset %d", off)
	}
	return page, nil
}
