// Package tsk implements the generic file-system abstraction core: the
// Info/File/Meta/Name/Dir/Attr/AttrRun/Block types, the driver capability
// table every per-FS driver registers against, and the handful of generic
// operations (FileWalk, AttrRead, Path2Inum, orphan discovery) implemented
// once on top of that table.
//
// The Driver interface below is a table of capabilities rather than a
// concrete type: each driver (pkg/xfs, pkg/yaffs2) owns its own state and
// the generic layer here never touches a driver's internals directly.
package tsk

// BlockFlag classifies a block along the axes block_getflags reports.
type BlockFlag uint32

const (
	BlockAlloc BlockFlag = 1 << iota
	BlockUnalloc
	BlockCont
	BlockMeta
	BlockBad
	BlockRaw
	BlockSparse
	BlockComp
	BlockRes
	BlockAOnly
	BlockUnused
)

func (f BlockFlag) Has(x BlockFlag) bool { return f&x == x }

// MetaFlag classifies an inode address along the axes inode_walk selects on.
type MetaFlag uint32

const (
	MetaAlloc MetaFlag = 1 << iota
	MetaUnalloc
	MetaUsed
	MetaUnused
	// MetaOrphan additionally selects inodes reachable only through the
	// synthetic orphan directory.
	MetaOrphan
)

func (f MetaFlag) Has(x MetaFlag) bool { return f&x == x }

// MetaType is FsMeta.Type: what kind of file an inode describes.
type MetaType int

const (
	TypeUndef MetaType = iota
	TypeReg
	TypeDir
	TypeFifo
	TypeChr
	TypeBlk
	TypeLnk
	TypeSock
	TypeWht
	TypeVirt
	TypeVirtDir
)

// NameFlag is FsName.Flags: whether a directory entry's target is allocated.
type NameFlag uint32

const (
	NameAlloc NameFlag = 1 << iota
	NameUnalloc
)

// NameType loosely mirrors MetaType for directory-entry ftype bytes that may
// be recorded independently of the target inode (XFS dir3 ftype byte,
// YAFFS2 object type).
type NameType int

const (
	NameTypeUndef NameType = iota
	NameTypeReg
	NameTypeDir
	NameTypeFifo
	NameTypeChr
	NameTypeBlk
	NameTypeLnk
	NameTypeSock
)

// WalkAction is returned by walk callbacks to control iteration.
type WalkAction int

const (
	WalkContinue WalkAction = iota
	WalkStop
	WalkError
)

// AttrType distinguishes an inode's content streams; XFS adds an extended
// attribute fork alongside the data fork, so this isn't just "data vs none".
type AttrType int

const (
	AttrTypeDefault AttrType = iota
	AttrTypeData
	AttrTypeExtended
)

// RunFlag marks special handling for a single FsAttrRun.
type RunFlag uint32

const (
	RunNone RunFlag = 0
	RunFiller RunFlag = 1 << iota
	RunSparse
)

// AttrState tracks whether FsMeta.Attr has been materialized yet, per the
// invariant that Attr is only valid when State == Studied.
type AttrState int

const (
	AttrEmpty AttrState = iota
	AttrStudied
	AttrError
)

// ContentType records the driver-private encoding FsMeta's ContentPtr holds
// until LoadAttrs materializes it (XFS fork formats, YAFFS2 version pointer).
type ContentType int

const (
	ContentNone ContentType = iota
	ContentLocal
	ContentExtents
	ContentBTree
	ContentYAFFS2Version
)

// DirOpenResult is dir_open_meta's three-way outcome: Ok, a non-fatal
// Corrupt carrying whatever entries were parsed before the failure, or a
// hard Err.
type DirOpenResult int

const (
	DirOk DirOpenResult = iota
	DirCorrupt
)
