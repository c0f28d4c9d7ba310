package yaffs2

import (
	"fmt"
	"strings"

	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// DirOpenMeta lists a directory's children. Children are
// found by scanning every object's version chain for a header whose
// parent_id matches this directory's object id; the object's current
// version gets its plain name, every earlier (necessarily unallocated)
// version gets a "#objID,version" suffix with the name's extension
// repeated after it, so e.g. photo.jpg's version 3 of object 42 lists as
// "photo.jpg#42,3.jpg" alongside the current "photo.jpg".
func (fs *FS) DirOpenMeta(meta *tsk.Meta) (*tsk.Dir, tsk.DirOpenResult, error) {
	switch meta.Addr {
	case tsk.Addr(fs.cache.LastInum):
		return fs.orphanDirEntries(), tsk.DirOk, nil
	case tsk.Addr(EncodeInum(0, ObjIDUnlinked)):
		return fs.childrenOf(ObjIDUnlinked, false), tsk.DirOk, nil
	case tsk.Addr(EncodeInum(0, ObjIDDeleted)):
		return fs.childrenOf(ObjIDDeleted, false), tsk.DirOk, nil
	}

	_, objID := DecodeInum(uint64(meta.Addr))
	dir := fs.childrenOf(objID, objID == ObjIDRoot)
	return dir, tsk.DirOk, nil
}

func (fs *FS) childrenOf(parentObjID uint32, isRoot bool) *tsk.Dir {
	dir := &tsk.Dir{}

	for oi := fs.cache.objHead; oi != noIndex; oi = fs.cache.Objects[oi].Next {
		obj := fs.cache.Objects[oi]
		if obj.ObjID == ObjIDRoot || obj.ObjID == ObjIDUnlinked || obj.ObjID == ObjIDDeleted {
			continue
		}

		var chain []int
		for vi := obj.LatestVersion; vi != noIndex; vi = fs.cache.Versions[vi].Prior {
			chain = append(chain, vi)
		}

		for _, vi := range chain {
			ver := fs.cache.Versions[vi]
			hdr, err := fs.versionHeader(ver)
			if err != nil || hdr.ParentID != parentObjID {
				continue
			}

			isLatest := vi == obj.LatestVersion
			version := uint32(0)
			name := hdr.Name
			if !isLatest {
				version = ver.VersionNumber
				name = suffixVersionedName(name, obj.ObjID, version)
			}

			flags := tsk.NameAlloc
			if !isLatest || hdr.ParentID == ObjIDUnlinked || hdr.ParentID == ObjIDDeleted {
				flags = tsk.NameUnalloc
			}

			dir.Entries = append(dir.Entries, tsk.Name{
				Name:  name,
				Addr:  tsk.Addr(EncodeInum(version, obj.ObjID)),
				Flags: flags,
				Type:  objTypeToNameType(hdr.ObjType),
			})
		}
	}

	if isRoot {
		dir.Entries = append(dir.Entries,
			tsk.Name{Name: "$Unlinked", Addr: tsk.Addr(EncodeInum(0, ObjIDUnlinked)), Flags: tsk.NameAlloc, Type: tsk.NameTypeDir},
			tsk.Name{Name: "$Deleted", Addr: tsk.Addr(EncodeInum(0, ObjIDDeleted)), Flags: tsk.NameAlloc, Type: tsk.NameTypeDir},
			tsk.Name{Name: "$Orphan", Addr: tsk.Addr(fs.cache.LastInum), Flags: tsk.NameAlloc, Type: tsk.NameTypeDir},
		)
	}

	return dir
}

// orphanDirEntries lists every object whose current version's parent_id is
// Unlinked or Deleted: files still holding chunks but removed from the
// directory tree, the synthetic Orphan directory's contents.
func (fs *FS) orphanDirEntries() *tsk.Dir {
	dir := &tsk.Dir{}
	for oi := fs.cache.objHead; oi != noIndex; oi = fs.cache.Objects[oi].Next {
		obj := fs.cache.Objects[oi]
		if obj.LatestVersion == noIndex {
			continue
		}
		ver := fs.cache.Versions[obj.LatestVersion]
		hdr, err := fs.versionHeader(ver)
		if err != nil {
			continue
		}
		if hdr.ParentID != ObjIDUnlinked && hdr.ParentID != ObjIDDeleted {
			continue
		}
		dir.Entries = append(dir.Entries, tsk.Name{
			Name:  fmt.Sprintf("OrphanFile-%d", obj.ObjID),
			Addr:  tsk.Addr(EncodeInum(0, obj.ObjID)),
			Flags: tsk.NameUnalloc,
			Type:  objTypeToNameType(hdr.ObjType),
		})
	}
	return dir
}

func suffixVersionedName(name string, objID, version uint32) string {
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		ext = name[i:]
	}
	return fmt.Sprintf("%s#%d,%d%s", name, objID, version, ext)
}

func objTypeToNameType(t uint32) tsk.NameType {
	switch t {
	case ObjTypeFile:
		return tsk.NameTypeReg
	case ObjTypeDirectory:
		return tsk.NameTypeDir
	case ObjTypeSymlink:
		return tsk.NameTypeLnk
	case ObjTypeSpecial:
		return tsk.NameTypeChr
	default:
		return tsk.NameTypeUndef
	}
}
