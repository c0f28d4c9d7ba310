package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// FS is the YAFFS2 tsk.Driver: a built Cache plus the raw image it was
// built from, which attribute reads and header lookups still need.
type FS struct {
	img    image.Image
	layout SpareLayout
	cache  *Cache

	chunkSize    int64
	validChunks  map[int64]bool // chunk start offset -> true, for BlockWalk/BlockGetFlags
}

// Mount detects the spare-area layout, scans every chunk, and folds them
// into version chains, producing a driver ready for InodeWalk/FileAddMeta.
func Mount(img image.Image, cfg *image.YAFFS2Config) (*FS, error) {
	layout, err := DetectSpareLayout(img, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := Scan(img, layout)
	if err != nil {
		return nil, err
	}
	if err := BuildVersions(img, cache); err != nil {
		return nil, err
	}

	valid := make(map[int64]bool, len(cache.Chunks))
	for _, c := range cache.Chunks {
		valid[c.Offset] = true
	}

	return &FS{
		img:         img,
		layout:      layout,
		cache:       cache,
		chunkSize:   layout.chunkSize(),
		validChunks: valid,
	}, nil
}

func (fs *FS) FsType() tsk.FsType { return tsk.TypeYAFFS2 }

// BlockSize is fixed at 1 byte: attribute runs (pkg/yaffs2/attr.go) address
// chunk pages by their absolute byte offset in the image, so the generic
// FileWalk/AttrRead helpers in pkg/tsk need no YAFFS2-specific scaling.
func (fs *FS) BlockSize() int64 { return 1 }

// BlockCount reports the number of chunk-sized slots the image holds, the
// unit BlockWalk/BlockGetFlags address blocks in (a distinct, driver-private
// scale from the byte-addressed scale BlockSize advertises for attributes).
func (fs *FS) BlockCount() int64 {
	if fs.chunkSize == 0 {
		return 0
	}
	return fs.img.Size() / fs.chunkSize
}

func (fs *FS) RootAddr() tsk.Addr { return tsk.Addr(EncodeInum(0, ObjIDRoot)) }

func (fs *FS) FirstInum() tsk.Addr { return tsk.Addr(EncodeInum(0, ObjIDRoot)) }

func (fs *FS) LastInum() tsk.Addr { return tsk.Addr(fs.cache.LastInum) }

func (fs *FS) Close() error { return nil }

// BlockWalk reports, for each chunk slot in [start, end], whether the
// sequential scan found a valid chunk starting there.
func (fs *FS) BlockWalk(start, end tsk.BlockAddr, sel tsk.BlockFlag, cb tsk.BlockWalkCB) error {
	for i := start; i <= end; i++ {
		off := int64(i) * fs.chunkSize
		flags := tsk.BlockUnalloc
		if fs.validChunks[off] {
			flags = tsk.BlockAlloc
		}
		if sel != 0 && flags&sel == 0 {
			continue
		}
		action, err := cb(&tsk.Block{Addr: i, Flags: flags})
		if err != nil {
			return err
		}
		if action == tsk.WalkStop {
			return nil
		}
	}
	return nil
}

func (fs *FS) BlockGetFlags(addr tsk.BlockAddr) (tsk.BlockFlag, error) {
	off := int64(addr) * fs.chunkSize
	if fs.validChunks[off] {
		return tsk.BlockAlloc, nil
	}
	return tsk.BlockUnalloc, nil
}

// InodeWalk visits every (version, object) combination in [start, end]
// matching sel, oldest object first, oldest version first.
func (fs *FS) InodeWalk(start, end tsk.Addr, sel tsk.MetaFlag, cb tsk.InodeWalkCB) error {
	for oi := fs.cache.objHead; oi != noIndex; oi = fs.cache.Objects[oi].Next {
		obj := fs.cache.Objects[oi]

		var chain []int
		for vi := obj.LatestVersion; vi != noIndex; vi = fs.cache.Versions[vi].Prior {
			chain = append(chain, vi)
		}
		for n := len(chain) - 1; n >= 0; n-- {
			vi := chain[n]
			ver := fs.cache.Versions[vi]
			isLatest := vi == obj.LatestVersion
			version := uint32(0)
			if !isLatest {
				version = ver.VersionNumber
			}

			addr := tsk.Addr(EncodeInum(version, obj.ObjID))
			if addr < start || addr > end {
				continue
			}

			meta, err := fs.FileAddMeta(addr)
			if err != nil {
				return err
			}
			if sel != 0 && meta.Flags&sel == 0 {
				continue
			}

			action, err := cb(&tsk.File{Meta: meta})
			if err != nil {
				return err
			}
			if action == tsk.WalkStop {
				return nil
			}
		}
	}
	return nil
}
