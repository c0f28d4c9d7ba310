package xfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

func newOracleTestFS(blockSize int64, agBlocks int64) *FS {
	fs := newTestFS(blockSize)
	fs.agBlocks = agBlocks
	return fs
}

func putAt(data []byte, off int64, v interface{}) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		panic(err)
	}
	copy(data[off:], buf.Bytes())
}

func TestReadAGIDecodesHeader(t *testing.T) {
	fs := newOracleTestFS(512, 1000)
	data := make([]byte, 4096)
	agi := AGI{Magic: AGIMagicNumber, Root: 7, Level: 2, Count: 64, FreeCount: 10}
	putAt(data, fs.secondarySectorOffset(), agi)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	got, err := fs.readAGI(0)
	if err != nil {
		t.Fatalf("readAGI: %v", err)
	}
	if got.Magic != AGIMagicNumber || got.Root != 7 || got.Level != 2 || got.Count != 64 {
		t.Errorf("unexpected AGI: %+v", got)
	}
}

func TestReadAGFDecodesHeader(t *testing.T) {
	fs := newOracleTestFS(512, 1000)
	data := make([]byte, 4096)
	agf := AGF{Magic: AGFMagicNumber, Roots: [2]uint32{3, 9}, Levels: [2]uint32{0, 1}, FreeBlocks: 42}
	putAt(data, fs.sectorSize(), agf)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	got, err := fs.readAGF(0)
	if err != nil {
		t.Fatalf("readAGF: %v", err)
	}
	if got.Magic != AGFMagicNumber || got.Roots[0] != 3 || got.Roots[1] != 9 || got.FreeBlocks != 42 {
		t.Errorf("unexpected AGF: %+v", got)
	}
}

func TestWalkInodeBTreeLeafRecords(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, blockSize)
	hdr := BTreeSBlock{Magic: IBTMagicNumber, Level: 0, NumRecs: 1, LeftSIB: 0xffffffff, RightSIB: 0xffffffff}
	putAt(data, 0, hdr)
	rec := InodeBTRecord{StartIno: 0, FreeCount: 1, Free: uint64(1) << 63} // inode 0 marked free
	putAt(data, 16, rec)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	var got []InodeBTRecord
	err := fs.walkInodeBTree(0, 0, 0, func(r InodeBTRecord) bool {
		got = append(got, r)
		return true
	})
	if err != nil {
		t.Fatalf("walkInodeBTree: %v", err)
	}
	if len(got) != 1 || got[0].StartIno != 0 || got[0].Free != uint64(1)<<63 {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestWalkInodeBTreeLeafRecordsV5Header(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, blockSize)
	hdr := BTreeSBlock{Magic: IBTMagicNumberV5, Level: 0, NumRecs: 1, LeftSIB: 0xffffffff, RightSIB: 0xffffffff}
	putAt(data, 0, hdr)
	rec := InodeBTRecord{StartIno: 64, FreeCount: 1, Free: uint64(1) << 63}
	putAt(data, agBtreeHeaderSizeV5, rec)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	var got []InodeBTRecord
	err := fs.walkInodeBTree(0, 0, 0, func(r InodeBTRecord) bool {
		got = append(got, r)
		return true
	})
	if err != nil {
		t.Fatalf("walkInodeBTree: %v", err)
	}
	if len(got) != 1 || got[0].StartIno != 64 {
		t.Errorf("unexpected records (a 16-byte header read would misalign into the v5 CRC trailer): %+v", got)
	}
}

func TestWalkInodeBTreeRejectsBadMagic(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, blockSize)
	hdr := BTreeSBlock{Magic: 0xdeadbeef, Level: 0, NumRecs: 0}
	putAt(data, 0, hdr)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	err := fs.walkInodeBTree(0, 0, 0, func(r InodeBTRecord) bool { return true })
	if err == nil {
		t.Fatal("expected an error for a bad inode btree magic")
	}
}

func TestWalkFreeSpaceBTreeLeafRecords(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, blockSize)
	hdr := BTreeSBlock{Magic: ABTBMagicNumber, Level: 0, NumRecs: 1}
	putAt(data, 0, hdr)
	rec := AllocRecord{StartBlock: 100, BlockCount: 5}
	putAt(data, 16, rec)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	var got []AllocRecord
	err := fs.walkFreeSpaceBTree(0, 0, 0, func(r AllocRecord) bool {
		got = append(got, r)
		return true
	})
	if err != nil {
		t.Fatalf("walkFreeSpaceBTree: %v", err)
	}
	if len(got) != 1 || got[0].StartBlock != 100 || got[0].BlockCount != 5 {
		t.Errorf("unexpected records: %+v", got)
	}
}

func TestWalkFreeSpaceBTreeLeafRecordsV5Header(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, blockSize)
	hdr := BTreeSBlock{Magic: ABTBMagicNumberV5, Level: 0, NumRecs: 1}
	putAt(data, 0, hdr)
	rec := AllocRecord{StartBlock: 200, BlockCount: 7}
	putAt(data, agBtreeHeaderSizeV5, rec)
	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	var got []AllocRecord
	err := fs.walkFreeSpaceBTree(0, 0, 0, func(r AllocRecord) bool {
		got = append(got, r)
		return true
	})
	if err != nil {
		t.Fatalf("walkFreeSpaceBTree: %v", err)
	}
	if len(got) != 1 || got[0].StartBlock != 200 || got[0].BlockCount != 7 {
		t.Errorf("unexpected records (a 16-byte header read would misalign into the v5 CRC trailer): %+v", got)
	}
}

func TestBlockWalkMarksFreeSpaceBTreeBlocksUnallocated(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, 4096)
	agf := AGF{Magic: AGFMagicNumber, Roots: [2]uint32{4, 0}, Levels: [2]uint32{0, 0}}
	putAt(data, fs.sectorSize(), agf)

	// Free-space-by-block btree root lives at AG-relative block 4, clear of
	// the superblock/AGF/AGI/AGFL header sectors.
	leafOff := fs.agOffset(0) + int64(agf.Roots[0])*blockSize
	hdr := BTreeSBlock{Magic: ABTBMagicNumber, Level: 0, NumRecs: 1}
	putAt(data, leafOff, hdr)
	rec := AllocRecord{StartBlock: 2, BlockCount: 3} // blocks 2,3,4 free
	putAt(data, leafOff+16, rec)

	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	flags := make(map[tsk.BlockAddr]tsk.BlockFlag)
	err := fs.BlockWalk(0, 6, 0, func(b *tsk.Block) (tsk.WalkAction, error) {
		flags[b.Addr] = b.Flags
		return tsk.WalkContinue, nil
	})
	if err != nil {
		t.Fatalf("BlockWalk: %v", err)
	}
	for _, free := range []tsk.BlockAddr{2, 3, 4} {
		if flags[free]&tsk.BlockUnalloc == 0 {
			t.Errorf("block %d: expected BlockUnalloc, got %v", free, flags[free])
		}
	}
	for _, alloc := range []tsk.BlockAddr{0, 1, 5, 6} {
		if flags[alloc]&tsk.BlockAlloc == 0 {
			t.Errorf("block %d: expected BlockAlloc, got %v", alloc, flags[alloc])
		}
	}
}

func TestBlockGetFlagsDelegatesToBlockWalk(t *testing.T) {
	blockSize := int64(512)
	fs := newOracleTestFS(blockSize, 1000)

	data := make([]byte, 4096)
	agf := AGF{Magic: AGFMagicNumber, Roots: [2]uint32{4, 0}, Levels: [2]uint32{0, 0}}
	putAt(data, fs.sectorSize(), agf)

	leafOff := fs.agOffset(0) + int64(agf.Roots[0])*blockSize
	hdr := BTreeSBlock{Magic: ABTBMagicNumber, Level: 0, NumRecs: 1}
	putAt(data, leafOff, hdr)
	rec := AllocRecord{StartBlock: 10, BlockCount: 1}
	putAt(data, leafOff+16, rec)

	fs.img = image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)

	flags, err := fs.BlockGetFlags(10)
	if err != nil {
		t.Fatalf("BlockGetFlags: %v", err)
	}
	if flags&tsk.BlockUnalloc == 0 {
		t.Errorf("expected block 10 to be free, got %v", flags)
	}

	flags, err = fs.BlockGetFlags(11)
	if err != nil {
		t.Fatalf("BlockGetFlags: %v", err)
	}
	if flags&tsk.BlockAlloc == 0 {
		t.Errorf("expected block 11 to be allocated, got %v", flags)
	}
}
