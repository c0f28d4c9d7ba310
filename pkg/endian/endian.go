// Package endian provides explicit big- and little-endian readers for the
// unaligned, packed on-disk integers used by the XFS and YAFFS2 drivers.
//
// XFS is entirely big-endian on disk; YAFFS2 spare/header records are
// little-endian. Rather than hiding byte order behind a generic "read"
// macro, packed and variable-position fields are read through these small
// explicit functions; pkg/xfs decodes its fixed-layout headers with
// encoding/binary instead.
package endian

import "encoding/binary"

// Order names which byte order a decoder call site should use. It exists so
// driver code can carry a single Order value alongside a superblock instead
// of hard-coding binary.BigEndian/LittleEndian at every call site.
type Order int

const (
	// Big is XFS's on-disk byte order.
	Big Order = iota
	// Little is YAFFS2's on-disk byte order.
	Little
)

// ByteOrder returns the standard library encoding for o.
func (o Order) ByteOrder() binary.ByteOrder {
	if o == Little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// BigEndian reads big-endian integers from arbitrary, possibly unaligned byte
// offsets. Every method panics if buf is too short for the requested field;
// callers are expected to have already validated buffer length against the
// on-disk structure size before decoding.
type bigEndian struct{}

// BigEndian is the package-level big-endian decoder, used throughout pkg/xfs.
var BigEndian bigEndian

func (bigEndian) Uint16(buf []byte) uint16 { return binary.BigEndian.Uint16(buf) }
func (bigEndian) Uint32(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }
func (bigEndian) Uint64(buf []byte) uint64 { return binary.BigEndian.Uint64(buf) }

func (bigEndian) Int16(buf []byte) int16 { return int16(binary.BigEndian.Uint16(buf)) }
func (bigEndian) Int32(buf []byte) int32 { return int32(binary.BigEndian.Uint32(buf)) }
func (bigEndian) Int64(buf []byte) int64 { return int64(binary.BigEndian.Uint64(buf)) }

func (bigEndian) PutUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }
func (bigEndian) PutUint32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }
func (bigEndian) PutUint64(buf []byte, v uint64) { binary.BigEndian.PutUint64(buf, v) }

// LittleEndian reads little-endian integers from arbitrary byte offsets, used
// throughout pkg/yaffs2 for spare tags and object headers.
type littleEndian struct{}

// LittleEndian is the package-level little-endian decoder, used throughout
// pkg/yaffs2.
var LittleEndian littleEndian

func (littleEndian) Uint16(buf []byte) uint16 { return binary.LittleEndian.Uint16(buf) }
func (littleEndian) Uint32(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }
func (littleEndian) Uint64(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) }

func (littleEndian) Int32(buf []byte) int32 { return int32(binary.LittleEndian.Uint32(buf)) }

// Bitfield64 extracts the run of nbits bits starting at bit offset `shift`
// (counted from the least-significant bit) out of a value held in a uint64.
func Bitfield64(v uint64, shift, nbits uint) uint64 {
	mask := uint64(1)<<nbits - 1
	return (v >> shift) & mask
}
