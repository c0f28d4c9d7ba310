// Package yaffs2 implements a read-only YAFFS2 driver: spare-area format
// auto-detection, a sequential chunk scanner, per-object version-chain
// reconstruction, attribute materialization with latest-write-wins chunk
// resolution, and the directory/inode views (including the synthetic
// Unlinked/Deleted/Orphan directories) built on top of the version cache.
//
// The cache below is arena-backed: chunks, versions, and objects live in
// flat slices and link to each other by index rather than by pointer, so
// the whole cache is released in one step and nothing here needs a garbage
// collector finalizer or an unsafe.Pointer escape hatch.
package yaffs2

const (
	noIndex = -1

	// Object ids, per the on-disk convention.
	ObjIDRoot     = 1
	ObjIDLostFound = 2
	ObjIDUnlinked = 3
	ObjIDDeleted  = 4
	ObjIDMax      = 0x3FFFF

	// Object type, decoded from the header's obj_type field.
	ObjTypeUnknown   = 0
	ObjTypeFile      = 1
	ObjTypeSymlink   = 2
	ObjTypeDirectory = 3
	ObjTypeHardlink  = 4
	ObjTypeSpecial   = 5

	seqMin = 0x00001000
	seqMax = 0xEFFFFF00

	headerChunkID = 0

	// inodeVersionShift packs a version number into the high bits of a TSK
	// inode number alongside a 18-bit object id.
	inodeVersionShift = 18
	inodeObjIDMask    = (1 << inodeVersionShift) - 1
)

// SpareLayout records where, within a spare area, the sequence/object/chunk
// id fields live, either supplied by a sidecar config or discovered by
// DetectSpareLayout.
type SpareLayout struct {
	PageSize       int64
	SpareSize      int64
	ChunksPerBlock int64

	SeqOffset   int64
	ObjIDOffset int64
	ChunkIDOffset int64
}

func (l SpareLayout) chunkSize() int64 { return l.PageSize + l.SpareSize }

// CacheChunk is one valid (page, spare) unit found during the scan.
type CacheChunk struct {
	Offset   int64
	Seq      uint32
	ObjID    uint32
	ChunkID  uint32
	ParentID uint32
	IsHeader bool

	Prev, Next int // indices into Cache.chunks, noIndex if absent
}

// CacheVersion is one version of one object's history: the chunks between
// two header boundaries, latest-to-earliest via Prior.
type CacheVersion struct {
	VersionNumber uint32
	SeqNumber     uint32

	HeaderChunk int // index into Cache.chunks, noIndex if this version never got a real header
	FirstChunk  int
	LastChunk   int

	// IsShrink reports whether the version's real header carried the
	// on-disk is_shrink flag, meaning this version resulted from a
	// truncate rather than an ordinary rewrite.
	IsShrink bool

	Prior int // index into Cache.versions, noIndex for the oldest version
}

// CacheObject is one object id's thread: its chunk list head/tail and its
// current (latest) version.
type CacheObject struct {
	ObjID         uint32
	FirstChunk    int // index into Cache.chunks
	LastChunk     int
	LatestVersion int // index into Cache.versions

	Next int // index into Cache.objects, sorted ascending by ObjID, noIndex at the end
}

// Cache is the fully built scan result: every valid chunk, every
// reconstructed version, and every object, held in arenas and cross
// referenced by index.
type Cache struct {
	Layout SpareLayout

	Chunks   []CacheChunk
	Versions []CacheVersion
	Objects  []CacheObject

	objIndex map[uint32]int // ObjID -> index into Objects
	objHead  int            // index into Objects of the lowest ObjID, noIndex if empty

	MaxObjID   uint32
	MaxVersion uint32
	LastInum   uint32 // reserved inode number for the synthetic Orphan directory
}

func newCache(layout SpareLayout) *Cache {
	return &Cache{Layout: layout, objIndex: make(map[uint32]int), objHead: noIndex}
}

func (c *Cache) objectByID(objID uint32) (int, bool) {
	idx, ok := c.objIndex[objID]
	return idx, ok
}

// EncodeInum packs (version, objID) into a TSK inode address. version 0
// means "the object's current/latest version".
func EncodeInum(version uint32, objID uint32) uint64 {
	return uint64(version)<<inodeVersionShift | uint64(objID)
}

// DecodeInum reverses EncodeInum.
func DecodeInum(inum uint64) (version uint32, objID uint32) {
	return uint32(inum >> inodeVersionShift), uint32(inum & inodeObjIDMask)
}
