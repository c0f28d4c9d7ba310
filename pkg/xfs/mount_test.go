package xfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/tsk-go/fsforensics/pkg/image"
)

// buildSuperblock renders sb as a 512-byte big-endian sector, matching the
// on-disk layout Mount reads.
func buildSuperblock(t *testing.T, sb SuperBlock) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, sb); err != nil {
		t.Fatalf("encoding superblock: %v", err)
	}
	out := make([]byte, 512)
	copy(out, buf.Bytes())
	return out
}

func testImage(t *testing.T, sector []byte, size int64) image.Image {
	t.Helper()
	data := make([]byte, size)
	copy(data, sector)
	return image.NewRawImage(bytes.NewReader(data), size, 512)
}

func TestMountRejectsBadMagic(t *testing.T) {
	sb := SuperBlock{MagicNumber: 0xdeadbeef, BlockSize: 4096, AGCount: 1}
	img := testImage(t, buildSuperblock(t, sb), 1<<20)

	_, err := Mount(img)
	if err == nil {
		t.Fatal("expected an error for a bad superblock magic")
	}
}

func TestMountRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	sb := SuperBlock{MagicNumber: SBMagicNumber, BlockSize: 4097, AGCount: 1}
	img := testImage(t, buildSuperblock(t, sb), 1<<20)

	_, err := Mount(img)
	if err == nil {
		t.Fatal("expected an error for a non-power-of-two block size")
	}
}

func TestMountAcceptsV4Superblock(t *testing.T) {
	sb := SuperBlock{
		MagicNumber: SBMagicNumber,
		BlockSize:   4096,
		AGBlocks:    1000,
		AGCount:     4,
		InodeSize:   256,
		InodesPerBlock: 16,
		VersionNum:  Version4,
		RootInode:   128, // agno=0, agino=128 for these parameters
		DataBlocks:  4000,
	}
	img := testImage(t, buildSuperblock(t, sb), 1<<20)

	fs, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if fs.hasV5Ext {
		t.Errorf("v4 superblock should not have a v5 extension")
	}
	if fs.BlockSize() != 4096 {
		t.Errorf("BlockSize = %d, want 4096", fs.BlockSize())
	}
	if fs.BlockCount() != 4000 {
		t.Errorf("BlockCount = %d, want 4000", fs.BlockCount())
	}

	agno, agino := fs.unpackAddr(fs.RootAddr())
	if agno != 0 {
		t.Errorf("root inode AG = %d, want 0", agno)
	}
	if agino != 128 {
		t.Errorf("root inode agino = %d, want 128", agino)
	}
}

func TestPackUnpackAddrRoundTrip(t *testing.T) {
	sb := SuperBlock{
		MagicNumber: SBMagicNumber,
		BlockSize:   4096,
		AGBlocks:    1000,
		AGCount:     4,
		InodeSize:   256,
		InodesPerBlock: 16,
		VersionNum:  Version4,
	}
	img := testImage(t, buildSuperblock(t, sb), 1<<20)
	fs, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	addr := fs.packAddr(2, 37)
	agno, agino := fs.unpackAddr(addr)
	if agno != 2 || agino != 37 {
		t.Errorf("round trip got (%d, %d), want (2, 37)", agno, agino)
	}
}

func TestMountReadsV5Extension(t *testing.T) {
	sb := SuperBlock{
		MagicNumber: SBMagicNumber,
		BlockSize:   4096,
		AGBlocks:    1000,
		AGCount:     1,
		InodeSize:   512,
		InodesPerBlock: 8,
		VersionNum:  Version5,
		DataBlocks:  1000,
	}
	sector := buildSuperblock(t, sb)

	var ext bytes.Buffer
	v5 := SuperBlockV5Ext{CRC: 0x12345678}
	if err := binary.Write(&ext, binary.BigEndian, v5); err != nil {
		t.Fatalf("encoding v5 extension: %v", err)
	}
	copy(sector[208:], ext.Bytes())

	img := testImage(t, sector, 1<<20)
	fs, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !fs.hasV5Ext {
		t.Fatal("expected v5 extension to be read")
	}
	if fs.sbV5.CRC != 0x12345678 {
		t.Errorf("CRC = %#x, want 0x12345678", fs.sbV5.CRC)
	}
}
