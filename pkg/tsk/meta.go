package tsk

import "time"

// Addr is an opaque inode/object address. XFS packs it from an allocation
// group number and an in-AG relative inode number; YAFFS2 packs it from a
// version generation and an object id. Drivers are free to interpret the
// bits; the generic core only ever compares, stores and prints it.
type Addr uint64

// BlockAddr is an opaque block/chunk address in the same spirit as Addr.
type BlockAddr uint64

// Block is a single allocation unit as reported by block_getflags/block_walk.
type Block struct {
	Addr  BlockAddr
	Flags BlockFlag
	Data  []byte
}

// AttrRun is one contiguous span of an attribute's content, expressed as a
// (file-relative, length) pair mapped onto either real disk blocks or a
// sparse hole. It is the generic counterpart of an XFS BMBT extent record or
// a contiguous span of YAFFS2 data chunks.
type AttrRun struct {
	// Offset is the byte offset into the attribute this run starts at.
	Offset int64
	// Addr is the first block address backing this run. Meaningless when
	// Flags has RunSparse set.
	Addr BlockAddr
	// Len is the run's length in blocks.
	Len int64
	Flags RunFlag
}

// Attr is one named content stream of an inode: the default data fork for a
// regular file or directory, or (XFS only) the extended attribute fork.
type Attr struct {
	Type   AttrType
	Name   string
	Size   int64
	Runs   []AttrRun
	// Resident holds inline content for formats that can store small
	// attributes directly in the inode (XFS local data/attr forks) instead
	// of as block runs. Non-nil implies Runs is empty.
	Resident []byte
}

// Name is one directory entry: the (name, target) pair dir_open_meta yields,
// before the target inode has necessarily been loaded.
type Name struct {
	Name  string
	Addr  Addr
	Flags NameFlag
	Type  NameType
}

// Dir is a fully parsed directory's entry list, the handle dir_open_meta
// hands back. It intentionally does not hold open any driver-side resources;
// everything needed to resolve each Name further has already been read.
type Dir struct {
	Addr    Addr
	Entries []Name
}

// Meta is the generic inode record every driver's FileAddMeta fills in.
// ContentPtr/ContentType are driver-private until LoadAttrs runs; callers
// outside the driver package must not interpret them directly.
type Meta struct {
	Addr  Addr
	Type  MetaType
	Flags MetaFlag

	Mode  uint32 // POSIX permission bits
	UID   uint32
	GID   uint32
	NLink uint32
	Size  int64

	ATime, MTime, CTime, CRTime time.Time

	// AttrState tracks whether Attr below has been populated.
	AttrState AttrState
	// Attr is the inode's content stream(s), valid only once AttrState is
	// AttrStudied. Most inodes have exactly one (the data fork/stream); XFS
	// inodes with a populated attribute fork have two.
	Attr []Attr

	// ContentType/ContentPtr stash the driver's as-yet-undecoded pointer to
	// on-disk content (an XFS fork byte blob, a YAFFS2 version index) so
	// LoadAttrs can be deferred until a caller actually needs file content.
	ContentType ContentType
	ContentPtr  interface{}

	// LinkTarget holds a symlink's target, populated at FileAddMeta time
	// since both drivers store it inline.
	LinkTarget string
}

// File bundles a Meta with the Name that was used to reach it, mirroring the
// original source's FS_FILE pairing of fs_meta and fs_name. Name is nil for
// files reached directly by inode address (istat/icat) rather than by walking
// a directory.
type File struct {
	Meta *Meta
	Name *Name
}
