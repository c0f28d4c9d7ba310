package tsk

import (
	"fmt"
	"strings"
)

// FileWalkCB receives successive byte spans of an attribute's content, in
// offset order. addr is the backing block address the bytes came from, or 0
// with sparse set to true for a hole.
type FileWalkCB func(data []byte, addr BlockAddr, sparse bool) (WalkAction, error)

// FileWalk streams an attribute's content to cb one run at a time, reading
// each run's blocks from the image directly. It is the generic counterpart
// of icat: drivers never implement their own "dump the file" loop, they only
// need to get Attr.Runs (or Resident) right.
func FileWalk(fi *Info, attr *Attr, cb FileWalkCB) error {
	if attr.Resident != nil {
		_, err := cb(attr.Resident, 0, false)
		return err
	}

	blockSize := fi.Driver.BlockSize()
	for _, run := range attr.Runs {
		if run.Flags&RunSparse != 0 {
			action, err := cb(nil, 0, true)
			if err != nil {
				return err
			}
			if action == WalkStop {
				return nil
			}
			continue
		}

		buf := make([]byte, run.Len*blockSize)
		n, err := fi.Image.ReadAt(int64(run.Addr)*blockSize, buf)
		if err != nil {
			return WrapErr(KindRead, err, "reading %d bytes at block %d", len(buf), run.Addr)
		}

		action, err := cb(buf[:n], run.Addr, false)
		if err != nil {
			return err
		}
		if action == WalkStop {
			return nil
		}
	}
	return nil
}

// AttrRead reads up to len(buf) bytes of attr's content starting at byte
// offset off, the random-access counterpart of FileWalk. It returns the
// number of bytes actually read, which is less than len(buf) only at EOF.
func AttrRead(fi *Info, attr *Attr, off int64, buf []byte) (int, error) {
	if off < 0 || off > attr.Size {
		return 0, Errorf(KindArg, "read offset %d out of range for attribute of size %d", off, attr.Size)
	}

	want := int64(len(buf))
	if off+want > attr.Size {
		want = attr.Size - off
	}
	if want <= 0 {
		return 0, nil
	}

	if attr.Resident != nil {
		return copy(buf, attr.Resident[off:off+want]), nil
	}

	blockSize := fi.Driver.BlockSize()
	var total int
	for _, run := range attr.Runs {
		runStart := run.Offset
		runEnd := run.Offset + run.Len*blockSize
		if runEnd <= off || runStart >= off+want {
			continue
		}

		// Intersect [off, off+want) with [runStart, runEnd).
		segStart := off
		if runStart > segStart {
			segStart = runStart
		}
		segEnd := off + want
		if runEnd < segEnd {
			segEnd = runEnd
		}
		segLen := segEnd - segStart

		dst := buf[segStart-off : segStart-off+segLen]
		if run.Flags&RunSparse != 0 {
			for i := range dst {
				dst[i] = 0
			}
		} else {
			readAt := int64(run.Addr)*blockSize + (segStart - runStart)
			n, err := fi.Image.ReadAt(readAt, dst)
			if err != nil {
				return total, WrapErr(KindRead, err, "reading attribute content at offset %d", readAt)
			}
			total += n
			continue
		}
		total += int(segLen)
	}
	return total, nil
}

// Path2Inum resolves a "/"-separated path from the root directory to an
// inode address, loading each intermediate directory with DirOpenMeta. An
// empty path or "/" resolves to the root address.
func Path2Inum(fi *Info, path string) (Addr, error) {
	path = strings.Trim(path, "/")
	addr := fi.Driver.RootAddr()
	if path == "" {
		return addr, nil
	}

	for _, comp := range strings.Split(path, "/") {
		if comp == "" {
			continue
		}
		meta, err := fi.Driver.FileAddMeta(addr)
		if err != nil {
			return 0, err
		}
		if meta.Type != TypeDir && meta.Type != TypeVirtDir {
			return 0, Errorf(KindArg, "path component %q: %q is not a directory", comp, path)
		}

		dir, result, err := fi.Driver.DirOpenMeta(meta)
		if err != nil {
			return 0, err
		}

		found := false
		for _, name := range dir.Entries {
			if name.Name == comp {
				addr = name.Addr
				found = true
				break
			}
		}
		if !found {
			if result == DirCorrupt {
				return 0, Errorf(KindFsWalk, "path component %q not found (directory was only partially recovered)", comp)
			}
			return 0, Errorf(KindArg, "path component %q not found", comp)
		}
	}
	return addr, nil
}

// OrphanDir returns the synthetic directory listing every in-use inode,
// allocated or not (InodeWalk selects on any intersecting flag, so the
// MetaUnalloc|MetaUsed selection admits every MetaUsed inode), that isn't
// reachable from any directory entry found while walking the directory
// tree from the root. It mirrors the reentrancy
// discipline of the original source's orphan_dir_lock: a second call while
// the first is still building returns an error rather than deadlocking or
// recursing, since the tree walk used to populate it may itself ask whether
// an address belongs to the orphan set.
func OrphanDir(fi *Info) (*Dir, error) {
	if fi.orphanDir != nil {
		return fi.orphanDir, nil
	}
	if fi.inOrphan {
		return nil, Errorf(KindAborted, "orphan directory build already in progress")
	}
	fi.inOrphan = true
	defer func() { fi.inOrphan = false }()

	reachable := make(map[Addr]bool)
	root := fi.Driver.RootAddr()
	reachable[root] = true
	if err := markReachable(fi, root, reachable); err != nil {
		return nil, err
	}

	dir := &Dir{Addr: Addr(0)}
	err := fi.Driver.InodeWalk(fi.Driver.FirstInum(), fi.Driver.LastInum(), MetaUnalloc|MetaUsed,
		func(f *File) (WalkAction, error) {
			if reachable[f.Meta.Addr] {
				return WalkContinue, nil
			}
			dir.Entries = append(dir.Entries, Name{
				Name:  fmt.Sprintf("OrphanFile-%d", f.Meta.Addr),
				Addr:  f.Meta.Addr,
				Flags: NameUnalloc,
				Type:  MetaTypeToNameType(f.Meta.Type),
			})
			return WalkContinue, nil
		})
	if err != nil {
		return nil, err
	}

	fi.orphanDir = dir
	return dir, nil
}

func markReachable(fi *Info, addr Addr, seen map[Addr]bool) error {
	meta, err := fi.Driver.FileAddMeta(addr)
	if err != nil {
		return err
	}
	if meta.Type != TypeDir && meta.Type != TypeVirtDir {
		return nil
	}

	dir, _, err := fi.Driver.DirOpenMeta(meta)
	if err != nil {
		return err
	}

	for _, name := range dir.Entries {
		if name.Name == "." || name.Name == ".." {
			continue
		}
		if seen[name.Addr] {
			continue
		}
		seen[name.Addr] = true
		if err := markReachable(fi, name.Addr, seen); err != nil {
			return err
		}
	}
	return nil
}

// MetaTypeToNameType maps an inode's resolved type to the NameType a
// directory entry would carry for it, for drivers that need to recover a
// directory entry's type by loading its target inode rather than trusting an
// inline type byte.
func MetaTypeToNameType(t MetaType) NameType {
	switch t {
	case TypeReg:
		return NameTypeReg
	case TypeDir, TypeVirtDir:
		return NameTypeDir
	case TypeFifo:
		return NameTypeFifo
	case TypeChr:
		return NameTypeChr
	case TypeBlk:
		return NameTypeBlk
	case TypeLnk:
		return NameTypeLnk
	case TypeSock:
		return NameTypeSock
	default:
		return NameTypeUndef
	}
}
