package xfs

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/davidminor/uint128"

	"github.com/tsk-go/fsforensics/pkg/endian"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// content is the driver-private payload stashed in tsk.Meta.ContentPtr,
// holding everything LoadAttrs needs to materialize the data (and,
// optionally, attribute) fork without re-reading the inode core.
type content struct {
	dataFormat int8
	dataRaw    []byte // local-format data fork bytes, or the extent/btree root bytes
	dataSize   int64

	hasAttrFork bool
	attrFormat  int8
	attrRaw     []byte
	forkOff     int64 // byte offset of the attribute fork within the literal area
}

// FileAddMeta loads inode addr's core and returns a Meta with ContentType/
// ContentPtr set for lazy fork decoding; Attr is left empty until LoadAttrs
// runs, per the Driver contract.
func (fs *FS) FileAddMeta(addr tsk.Addr) (*tsk.Meta, error) {
	agno, agino := fs.unpackAddr(addr)
	if int64(agno) >= fs.agCount {
		return nil, tsk.Errorf(tsk.KindInodeNum, "inode %d: allocation group %d out of range (agcount=%d)", addr, agno, fs.agCount)
	}

	off := fs.inodeOffset(addr)
	buf := make([]byte, fs.inodeSize)
	if _, err := fs.img.ReadAt(off, buf); err != nil {
		return nil, tsk.WrapErr(tsk.KindRead, err, "reading inode %d at offset %d", addr, off)
	}

	var core InodeCore
	if err := binary.Read(bytes.NewReader(buf[:InodeCoreSize]), binary.BigEndian, &core); err != nil {
		return nil, tsk.WrapErr(tsk.KindInodeCor, err, "decoding inode %d core", addr)
	}
	if core.Magic != InodeMagicNumber {
		return nil, tsk.Errorf(tsk.KindInodeCor, "inode %d: bad magic %#x, want %#x", addr, core.Magic, uint16(InodeMagicNumber))
	}

	meta := &tsk.Meta{
		Addr:  addr,
		Mode:  uint32(core.Mode) & 0xfff,
		UID:   core.UID,
		GID:   core.GID,
		NLink: core.Nlink,
		Size:  core.Size,
		ATime: time.Unix(int64(core.ATime.Sec), int64(core.ATime.NSec)).UTC(),
		MTime: time.Unix(int64(core.MTime.Sec), int64(core.MTime.NSec)).UTC(),
		CTime: time.Unix(int64(core.CTime.Sec), int64(core.CTime.NSec)).UTC(),
	}
	if core.Nlink == 0 && agino != 0 {
		meta.Flags = tsk.MetaUnalloc
	} else {
		meta.Flags = tsk.MetaAlloc
	}
	meta.Flags |= tsk.MetaUsed

	switch core.Mode & 0xf000 {
	case 0x8000:
		meta.Type = tsk.TypeReg
	case 0x4000:
		meta.Type = tsk.TypeDir
	case 0xa000:
		meta.Type = tsk.TypeLnk
	case 0x2000:
		meta.Type = tsk.TypeChr
	case 0x6000:
		meta.Type = tsk.TypeBlk
	case 0x1000:
		meta.Type = tsk.TypeFifo
	case 0xc000:
		meta.Type = tsk.TypeSock
	default:
		meta.Type = tsk.TypeUndef
	}

	literal := buf[InodeCoreSize:]
	c := &content{dataFormat: int8(core.Format), dataSize: core.Size}

	if core.ForkOff != 0 {
		c.hasAttrFork = true
		c.forkOff = int64(core.ForkOff) * 8
		c.attrFormat = core.AFormat
		if int(c.forkOff) < len(literal) {
			c.attrRaw = literal[c.forkOff:]
			c.dataRaw = literal[:c.forkOff]
		}
	} else {
		c.dataRaw = literal
	}
	if core.Format == InodeFormatExtents {
		// Only the first nextents 16-byte records of the fork are extents.
		if n := int(core.NExtents) * 16; n >= 0 && n <= len(c.dataRaw) {
			c.dataRaw = c.dataRaw[:n]
		}
	}

	meta.ContentType = tsk.ContentLocal
	switch core.Format {
	case InodeFormatExtents:
		meta.ContentType = tsk.ContentExtents
	case InodeFormatBTree:
		meta.ContentType = tsk.ContentBTree
	}
	meta.ContentPtr = c

	if meta.Type == tsk.TypeLnk && core.Format == InodeFormatLocal {
		meta.LinkTarget = string(bytes.TrimRight(c.dataRaw[:minInt(len(c.dataRaw), int(core.Size))], "\x00"))
	}

	return meta, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// LoadAttrs materializes meta.Attr from the stashed content, decoding the
// data fork (and attribute fork, if present) into tsk.Attr/tsk.AttrRun per
// the inode's on-disk format.
func (fs *FS) LoadAttrs(meta *tsk.Meta) error {
	if meta.AttrState == tsk.AttrStudied {
		return nil
	}
	c, ok := meta.ContentPtr.(*content)
	if !ok {
		return tsk.Errorf(tsk.KindArg, "inode %d has no stashed fork content", meta.Addr)
	}

	dataAttr, err := fs.decodeFork(meta.Addr, c.dataFormat, c.dataRaw, c.dataSize, tsk.AttrTypeData)
	if err != nil {
		meta.AttrState = tsk.AttrError
		return err
	}
	meta.Attr = []tsk.Attr{*dataAttr}

	if c.hasAttrFork {
		attrAttr, err := fs.decodeFork(meta.Addr, c.attrFormat, c.attrRaw, int64(len(c.attrRaw)), tsk.AttrTypeExtended)
		if err != nil {
			// SUPPLEMENTED FEATURES: a corrupt attribute fork degrades to
			// "no extended attributes", it does not fail loading the data
			// fork callers actually asked for.
			meta.AttrState = tsk.AttrStudied
			return nil
		}
		meta.Attr = append(meta.Attr, *attrAttr)
	}

	meta.AttrState = tsk.AttrStudied
	return nil
}

func (fs *FS) decodeFork(addr tsk.Addr, format int8, raw []byte, size int64, typ tsk.AttrType) (*tsk.Attr, error) {
	switch format {
	case InodeFormatLocal:
		buf := make([]byte, 0)
		if size > 0 && int64(len(raw)) >= size {
			buf = append(buf, raw[:size]...)
		} else {
			buf = append(buf, raw...)
		}
		return &tsk.Attr{Type: typ, Size: size, Resident: buf}, nil

	case InodeFormatExtents:
		runs, err := decodeExtents(raw, fs.blockSize)
		if err != nil {
			return nil, tsk.WrapErr(tsk.KindInodeCor, err, "inode %d: decoding extent fork", addr)
		}
		return &tsk.Attr{Type: typ, Size: size, Runs: runs}, nil

	case InodeFormatBTree:
		runs, err := fs.decodeBTreeFork(raw, size)
		if err != nil {
			return nil, tsk.WrapErr(tsk.KindInodeCor, err, "inode %d: decoding btree fork", addr)
		}
		return &tsk.Attr{Type: typ, Size: size, Runs: runs}, nil

	case InodeFormatDev:
		return &tsk.Attr{Type: typ, Size: 0}, nil

	default:
		return nil, tsk.Errorf(tsk.KindUnsupported, "unrecognized fork format %d", format)
	}
}

// decodeExtents unpacks an in-core BMBT extent list: raw is a run of
// 16-byte packed records, each a 128-bit value split as
// 1 bit extent flag | 54 bits startoff | 52 bits startblock | 21 bits
// blockcount. uint128 provides the wide shifts/masks the split needs since
// the startblock field straddles the Go uint64 halves.
func decodeExtents(raw []byte, blockSize int64) ([]tsk.AttrRun, error) {
	const recSize = 16
	n := len(raw) / recSize
	runs := make([]tsk.AttrRun, 0, n)
	for i := 0; i < n; i++ {
		rec := raw[i*recSize : i*recSize+recSize]
		v := uint128.Uint128{
			H: endian.BigEndian.Uint64(rec[0:8]),
			L: endian.BigEndian.Uint64(rec[8:16]),
		}

		blockcount := extractBits128(v, 0, bmbtBlockcountBits)
		startblock := extractBits128(v, bmbtBlockcountBits, bmbtStartblockBits)
		startoff := extractBits128(v, bmbtBlockcountBits+bmbtStartblockBits, bmbtStartoffBits)
		flag := extractBits128(v, bmbtBlockcountBits+bmbtStartblockBits+bmbtStartoffBits, bmbtExntFlagBits)

		run := tsk.AttrRun{
			Offset: int64(startoff) * blockSize,
			Addr:   tsk.BlockAddr(startblock),
			Len:    int64(blockcount),
		}
		if flag != 0 {
			run.Flags |= tsk.RunFiller // unwritten extent: allocated but logically zero
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func bitMask64(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// extractBits128 pulls nbits bits starting at bit offset shift (from the
// LSB of v.L) out of a 128-bit packed BMBT record, returning them
// right-justified in a uint64. The 52-bit startblock field straddles v.L and
// v.H, so this can't be done with a single shift on either half alone.
func extractBits128(v uint128.Uint128, shift, nbits uint) uint64 {
	if shift >= 64 {
		return (v.H >> (shift - 64)) & bitMask64(nbits)
	}
	bitsFromLo := 64 - shift
	low := v.L >> shift
	if nbits <= bitsFromLo {
		return low & bitMask64(nbits)
	}
	high := v.H << bitsFromLo
	return (low | high) & bitMask64(nbits)
}

// decodeBTreeFork walks a BMBT whose root lives inline in the inode's data
// fork. The in-inode root omits the on-disk block header (no magic/sibling
// pointers, just level/numrecs followed by split key and pointer arrays);
// on-disk child blocks carry the full header. This driver follows pointers
// however deep the tree goes rather than assuming a fixed depth.
func (fs *FS) decodeBTreeFork(raw []byte, size int64) ([]tsk.AttrRun, error) {
	if len(raw) < 4 {
		return nil, tsk.Errorf(tsk.KindInodeCor, "btree fork root too short")
	}
	level := endian.BigEndian.Uint16(raw[0:2])
	numrecs := endian.BigEndian.Uint16(raw[2:4])

	ptrsOff := 4 + int(numrecs)*8 // keys array (8 bytes each) precedes pointers
	ptrs := raw[minInt(ptrsOff, len(raw)):]

	var runs []tsk.AttrRun
	for i := 0; i < int(numrecs) && (i+1)*8 <= len(ptrs); i++ {
		ptr := endian.BigEndian.Uint64(ptrs[i*8 : i*8+8])
		blockRuns, err := fs.readBMBTBlock(tsk.BlockAddr(ptr), int(level)-1)
		if err != nil {
			return nil, err
		}
		runs = append(runs, blockRuns...)
	}
	return runs, nil
}

// bmbtHeaderSize returns the size of the long-form btree block header
// (xfs_btree_block_lhdr: magic+level+numrecs, then 64-bit sibling
// pointers) an on-disk BMBT block carries: 24 bytes pre-v5, 72 once the
// v5/CRC trailer (blkno+lsn+uuid+owner+crc+pad) is appended. This is
// distinct from the 16/56-byte short-form header the per-AG btrees use,
// since BMBT sibling pointers are full filesystem block numbers that can
// cross allocation groups.
func bmbtHeaderSize(magic uint32) int {
	if magic == BMAPMagicNumberV5 {
		return bmbtHeaderSizeV5
	}
	return bmbtHeaderSizeV4
}

func (fs *FS) readBMBTBlock(fsbno tsk.BlockAddr, level int) ([]tsk.AttrRun, error) {
	buf := make([]byte, fs.blockSize)
	if _, err := fs.img.ReadAt(int64(fsbno)*fs.blockSize, buf); err != nil {
		return nil, tsk.WrapErr(tsk.KindRead, err, "reading BMBT block %d", fsbno)
	}

	magic := endian.BigEndian.Uint32(buf[0:4])
	numrecs := int(endian.BigEndian.Uint16(buf[6:8]))
	body := buf[bmbtHeaderSize(magic):]

	if level == 0 {
		end := minInt(numrecs*16, len(body))
		return decodeExtents(body[:end], fs.blockSize)
	}

	ptrsOff := numrecs * 8 // keys array precedes pointers in a node block
	ptrs := body[minInt(ptrsOff, len(body)):]

	var runs []tsk.AttrRun
	for i := 0; i < numrecs && (i+1)*8 <= len(ptrs); i++ {
		ptr := endian.BigEndian.Uint64(ptrs[i*8 : i*8+8])
		childRuns, err := fs.readBMBTBlock(tsk.BlockAddr(ptr), level-1)
		if err != nil {
			return nil, err
		}
		runs = append(runs, childRuns...)
	}
	return runs, nil
}
