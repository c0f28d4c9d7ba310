package tsk

import (
	"github.com/tsk-go/fsforensics/pkg/image"
)

// FsType names which on-disk format an Info was mounted as.
type FsType int

const (
	TypeXFS FsType = iota
	TypeYAFFS2
)

func (t FsType) String() string {
	switch t {
	case TypeXFS:
		return "xfs"
	case TypeYAFFS2:
		return "yaffs2"
	default:
		return "unknown"
	}
}

// BlockWalkCB is the callback block_walk invokes once per block in range.
// Returning WalkStop ends the walk early without error; WalkError ends it and
// causes BlockWalk to return the error the callback stashed.
type BlockWalkCB func(b *Block) (WalkAction, error)

// InodeWalkCB is the callback inode_walk invokes once per selected inode.
type InodeWalkCB func(f *File) (WalkAction, error)

// Driver is the capability table a concrete file-system driver registers.
// It corresponds to the original source's fs_info function-pointer table;
// Go expresses it as an interface instead. The generic helpers in walk.go
// are built entirely on top of this contract and never reach into a
// driver's private state.
type Driver interface {
	// FsType reports which concrete format this driver implements.
	FsType() FsType

	// BlockSize is the file system's logical block size in bytes.
	BlockSize() int64
	// BlockCount is the total number of addressable blocks.
	BlockCount() int64
	// RootAddr is the inode address of the root directory.
	RootAddr() Addr
	// FirstInum/LastInum bound the valid inode address space, used to
	// validate caller-supplied addresses and to drive a full inode_walk.
	FirstInum() Addr
	LastInum() Addr

	// BlockWalk invokes cb once for every block address in [start, end]
	// whose flags intersect sel (0 selects everything). Drivers that have no
	// notion of unallocated-block enumeration (YAFFS2, which is chunk- not
	// block-addressed in the TSK sense) may implement this over their chunk
	// space instead; see pkg/yaffs2.
	BlockWalk(start, end BlockAddr, sel BlockFlag, cb BlockWalkCB) error
	// BlockGetFlags reports the allocation state of a single block.
	BlockGetFlags(addr BlockAddr) (BlockFlag, error)

	// InodeWalk invokes cb once for every inode address in [start, end] whose
	// flags intersect sel.
	InodeWalk(start, end Addr, sel MetaFlag, cb InodeWalkCB) error
	// FileAddMeta loads and fills in the Meta for a single inode address.
	// ContentType/ContentPtr are populated but Attr is left empty
	// (AttrState == AttrEmpty) until a caller asks for it via LoadAttrs.
	FileAddMeta(addr Addr) (*Meta, error)

	// DirOpenMeta parses the directory content referenced by meta into a
	// Dir. Returning DirCorrupt along with a partially filled Dir is how a
	// driver reports "parsed as much as I safely could" rather than failing
	// the whole directory outright.
	DirOpenMeta(meta *Meta) (*Dir, DirOpenResult, error)

	// LoadAttrs materializes meta.Attr from meta.ContentPtr/ContentType.
	// Idempotent: calling it again on an already-Studied Meta is a no-op.
	LoadAttrs(meta *Meta) error

	// Close releases any driver-held resources. The underlying image.Image
	// is owned by the caller and is not closed here.
	Close() error
}

// Info is the handle callers obtain by mounting an image; it pairs the
// image byte source with whichever driver recognized it, and offers the
// path-based and orphan-discovery operations generic across both formats.
type Info struct {
	Image  image.Image
	Driver Driver

	// orphanDir, once built, caches the synthetic directory listing for
	// reuse; see OrphanDir.
	orphanDir  *Dir
	inOrphan   bool // reentrancy guard, mirrors orphan_dir_lock's purpose
}

// Close closes the driver. It does not close Info.Image; the caller opened
// it and owns its lifetime.
func (fi *Info) Close() error {
	return fi.Driver.Close()
}
