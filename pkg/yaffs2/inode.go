package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// FileAddMeta decodes the (version, objID) packed into addr. Synthetic
// addresses (Unlinked, Deleted, the Orphan directory) are
// materialized without touching the chunk cache; everything else resolves
// to a version's header chunk. Hardlink objects carry no mode/times of
// their own and are transparently redirected to the object they point at.
func (fs *FS) FileAddMeta(addr tsk.Addr) (*tsk.Meta, error) {
	if addr == tsk.Addr(fs.cache.LastInum) {
		return fs.virtualDirMeta(addr), nil
	}

	version, objID := DecodeInum(uint64(addr))
	if version == 0 && (objID == ObjIDUnlinked || objID == ObjIDDeleted) {
		return fs.virtualDirMeta(addr), nil
	}

	objIdx, ok := fs.cache.objectByID(objID)
	if !ok {
		return nil, tsk.Errorf(tsk.KindArg, "yaffs2: no object with id %d", objID)
	}
	verIdx, isLatest, err := fs.findVersion(objIdx, version)
	if err != nil {
		return nil, err
	}
	ver := fs.cache.Versions[verIdx]

	hdr, err := fs.versionHeader(ver)
	if err != nil {
		return nil, err
	}

	if hdr.ObjType == ObjTypeHardlink {
		target, err := fs.FileAddMeta(tsk.Addr(EncodeInum(0, hdr.EquivalentID)))
		if err != nil {
			return nil, err
		}
		redirected := *target
		redirected.Addr = addr
		return &redirected, nil
	}

	meta := &tsk.Meta{
		Addr:  addr,
		Type:  objTypeToMetaType(hdr.ObjType),
		Mode:  hdr.Mode,
		UID:   hdr.UID,
		GID:   hdr.GID,
		NLink: 1,
		Size:  hdr.FileSize,
		ATime: hdr.ATime, MTime: hdr.MTime, CTime: hdr.CTime,
		ContentType: tsk.ContentYAFFS2Version,
		ContentPtr:  verIdx,
	}
	if hdr.ObjType == ObjTypeSymlink {
		meta.LinkTarget = hdr.Alias
	}

	deleted := hdr.ParentID == ObjIDUnlinked || hdr.ParentID == ObjIDDeleted
	switch {
	case isLatest && !deleted:
		meta.Flags = tsk.MetaAlloc | tsk.MetaUsed
	default:
		meta.Flags = tsk.MetaUnalloc | tsk.MetaUsed
	}
	return meta, nil
}

// findVersion resolves a requested version number (0 meaning "latest") to an
// index into Cache.Versions, walking the object's Prior chain.
func (fs *FS) findVersion(objIdx int, version uint32) (idx int, isLatest bool, err error) {
	obj := fs.cache.Objects[objIdx]
	if obj.LatestVersion == noIndex {
		return 0, false, tsk.Errorf(tsk.KindArg, "yaffs2: object %d has no versions", obj.ObjID)
	}
	if version == 0 {
		return obj.LatestVersion, true, nil
	}
	for vi := obj.LatestVersion; vi != noIndex; vi = fs.cache.Versions[vi].Prior {
		if fs.cache.Versions[vi].VersionNumber == version {
			return vi, vi == obj.LatestVersion, nil
		}
	}
	return 0, false, tsk.Errorf(tsk.KindArg, "yaffs2: object %d has no version %d", obj.ObjID, version)
}

// VersionIsShrink reports whether addr's version was recorded with the
// on-disk shrink-header flag set, meaning it resulted from a truncate
// rather than an ordinary rewrite.
func (fs *FS) VersionIsShrink(addr tsk.Addr) (bool, error) {
	version, objID := DecodeInum(uint64(addr))
	objIdx, ok := fs.cache.objectByID(objID)
	if !ok {
		return false, tsk.Errorf(tsk.KindArg, "yaffs2: no object with id %d", objID)
	}
	verIdx, _, err := fs.findVersion(objIdx, version)
	if err != nil {
		return false, err
	}
	return fs.cache.Versions[verIdx].IsShrink, nil
}

func (fs *FS) versionHeader(ver CacheVersion) (header, error) {
	if ver.HeaderChunk == noIndex {
		return header{}, nil
	}
	page, err := fs.cache.readHeaderPage(fs.img, ver.HeaderChunk)
	if err != nil {
		return header{}, err
	}
	return parseHeader(page), nil
}

func (fs *FS) virtualDirMeta(addr tsk.Addr) *tsk.Meta {
	return &tsk.Meta{
		Addr:        addr,
		Type:        tsk.TypeVirtDir,
		Flags:       tsk.MetaAlloc | tsk.MetaUsed,
		ContentType: tsk.ContentNone,
	}
}

// LoadAttrs materializes a version's data fork. Directories and the
// synthetic virtual directories carry no data fork.
func (fs *FS) LoadAttrs(meta *tsk.Meta) error {
	if meta.AttrState == tsk.AttrStudied {
		return nil
	}
	if meta.ContentType != tsk.ContentYAFFS2Version {
		meta.AttrState = tsk.AttrStudied
		return nil
	}

	verIdx, ok := meta.ContentPtr.(int)
	if !ok {
		meta.AttrState = tsk.AttrError
		return tsk.Errorf(tsk.KindIndexCorrupt, "yaffs2: malformed content pointer on inode %d", meta.Addr)
	}
	ver := fs.cache.Versions[verIdx]

	if meta.Type != tsk.TypeReg && meta.Type != tsk.TypeLnk {
		meta.AttrState = tsk.AttrStudied
		return nil
	}

	attr := fs.cache.buildDataAttr(fs.layout.PageSize, ver, meta.Size)
	meta.Attr = []tsk.Attr{*attr}
	meta.AttrState = tsk.AttrStudied
	return nil
}

func objTypeToMetaType(t uint32) tsk.MetaType {
	switch t {
	case ObjTypeFile:
		return tsk.TypeReg
	case ObjTypeDirectory:
		return tsk.TypeDir
	case ObjTypeSymlink:
		return tsk.TypeLnk
	case ObjTypeSpecial:
		return tsk.TypeChr
	default:
		return tsk.TypeUndef
	}
}
