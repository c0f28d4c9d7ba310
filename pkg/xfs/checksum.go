package xfs

import (
	"hash/crc32"

	"github.com/tsk-go/fsforensics/pkg/endian"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// sbCRCOffset is sb_crc's byte offset within the superblock sector: it
// immediately follows SuperBlock (208 bytes) and SuperBlockV5Ext's four
// feature-mask fields (16 bytes).
const sbCRCOffset = 224

// ChecksumMismatch reports one CRC32C verification failure found by
// VerifyChecksums.
type ChecksumMismatch struct {
	What     string
	Stored   uint32
	Computed uint32
}

// VerifyChecksums recomputes the primary superblock's CRC32C (Castagnoli,
// the polynomial XFS uses for every v5 metadata checksum) with sb_crc
// itself zeroed, and compares it against the stored value. A mismatch is
// reported, not treated as mount-fatal: a corrupted checksum doesn't make
// the rest of the sector unreadable, so callers (fsstat) surface it as a
// warning rather than aborting.
//
// v4 (non-CRC) images carry no checksum and VerifyChecksums is a no-op for
// them.
func (fs *FS) VerifyChecksums() ([]ChecksumMismatch, error) {
	if !fs.sb.Rev5() {
		return nil, nil
	}

	sectorSize := fs.sectorSize()
	buf := make([]byte, sectorSize)
	if _, err := fs.img.ReadAt(0, buf); err != nil {
		return nil, tsk.WrapErr(tsk.KindRead, err, "reading primary superblock for checksum verification")
	}
	if len(buf) < sbCRCOffset+4 {
		return nil, nil // sector too small to carry a v5 crc field
	}

	stored := endian.LittleEndian.Uint32(buf[sbCRCOffset : sbCRCOffset+4])

	zeroed := make([]byte, len(buf))
	copy(zeroed, buf)
	for i := 0; i < 4; i++ {
		zeroed[sbCRCOffset+i] = 0
	}
	computed := crc32.Checksum(zeroed, crc32cTable)

	if computed == stored {
		return nil, nil
	}
	return []ChecksumMismatch{{What: "primary superblock", Stored: stored, Computed: computed}}, nil
}
