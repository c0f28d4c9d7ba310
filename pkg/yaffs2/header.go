package yaffs2

import (
	"bytes"
	"time"

	"github.com/tsk-go/fsforensics/pkg/endian"
)

// header is the decoded form of a chunk_id=0 header record: a 512-byte,
// little-endian record living at the start of the chunk's page.
type header struct {
	ObjType      uint32
	ParentID     uint32
	Name         string
	Mode         uint32
	UID          uint32
	GID          uint32
	ATime, MTime, CTime time.Time
	FileSize     int64
	EquivalentID uint32
	Alias        string
}

const (
	headerNameOff  = 18
	headerNameLen  = 256
	headerModeOff  = headerNameOff + headerNameLen
	headerUIDOff   = headerModeOff + 4
	headerGIDOff   = headerUIDOff + 4
	headerATimeOff = headerGIDOff + 4
	headerMTimeOff = headerATimeOff + 4
	headerCTimeOff = headerMTimeOff + 4
	headerSizeOff  = headerCTimeOff + 4
	headerEquivOff = headerSizeOff + 4
	headerAliasOff = headerEquivOff + 4
	headerAliasLen = 160
	headerRecordSize = headerAliasOff + headerAliasLen

	// The on-disk header continues past the fields parseHeader decodes
	// above: rdev_mode(4), win_{c,a,m}time(8 each), inband_obj_id(4),
	// inband_is_shrink(4), file_size_high(4), reserved(4), shadows_obj(4),
	// then the trailing is_shrink flag this driver reads. headerShrinkOff
	// is only consulted when the configured page size is large enough to
	// hold it; small-page layouts never see these trailing fields at all.
	headerShrinkOff = headerAliasOff + headerAliasLen + 4 + 8*3 + 4 + 4 + 4 + 4 + 4
)

// parseHeader decodes a header record from the first bytes of a chunk's
// page. page must be at least headerRecordSize bytes.
func parseHeader(page []byte) header {
	var h header
	if len(page) < headerRecordSize {
		return h
	}

	h.ObjType = endian.LittleEndian.Uint32(page[0:4])
	h.ParentID = endian.LittleEndian.Uint32(page[4:8])
	h.Name = cstring(page[headerNameOff : headerNameOff+headerNameLen])
	h.Mode = endian.LittleEndian.Uint32(page[headerModeOff : headerModeOff+4])
	h.UID = endian.LittleEndian.Uint32(page[headerUIDOff : headerUIDOff+4])
	h.GID = endian.LittleEndian.Uint32(page[headerGIDOff : headerGIDOff+4])
	h.ATime = time.Unix(int64(endian.LittleEndian.Uint32(page[headerATimeOff:headerATimeOff+4])), 0).UTC()
	h.MTime = time.Unix(int64(endian.LittleEndian.Uint32(page[headerMTimeOff:headerMTimeOff+4])), 0).UTC()
	h.CTime = time.Unix(int64(endian.LittleEndian.Uint32(page[headerCTimeOff:headerCTimeOff+4])), 0).UTC()
	h.FileSize = int64(int32(endian.LittleEndian.Uint32(page[headerSizeOff : headerSizeOff+4])))
	h.EquivalentID = endian.LittleEndian.Uint32(page[headerEquivOff : headerEquivOff+4])
	h.Alias = cstring(page[headerAliasOff : headerAliasOff+headerAliasLen])

	return h
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
