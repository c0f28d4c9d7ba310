package yaffs2

import (
	"github.com/tsk-go/fsforensics/pkg/endian"
	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

const (
	blocksToTest   = 10
	chunksToTest   = 10
	minChunksRead  = 10
	windowSize     = 16
)

// DetectSpareLayout resolves the page/spare/chunks-per-block sizes and the
// spare-area field offsets for img, honoring any sidecar config overrides
// and falling back to the fixed-point sampling procedure below when
// offsets aren't already known.
func DetectSpareLayout(img image.Image, cfg *image.YAFFS2Config) (SpareLayout, error) {
	layout := SpareLayout{PageSize: 2048, SpareSize: 64, ChunksPerBlock: 64}
	if cfg != nil {
		if cfg.PageSize != 0 {
			layout.PageSize = cfg.PageSize
		}
		if cfg.SpareSize != 0 {
			layout.SpareSize = cfg.SpareSize
		}
		if cfg.ChunksPerBlock != 0 {
			layout.ChunksPerBlock = cfg.ChunksPerBlock
		}
		if cfg.HasOffsets() {
			layout.SeqOffset = cfg.SpareSeqOffset
			layout.ObjIDOffset = cfg.SpareObjIDOffset
			layout.ChunkIDOffset = cfg.SpareChunkIDOffset
			return layout, nil
		}
	}

	offsets, err := sampleAndDetect(img, layout)
	if err != nil {
		return layout, err
	}
	layout.SeqOffset = offsets[0]
	layout.ObjIDOffset = offsets[1]
	layout.ChunkIDOffset = offsets[2]
	return layout, nil
}

// sampleAndDetect implements the fixed-point sampling procedure: sample
// spares from up to blocksToTest blocks, then test every 16-byte window for
// self-consistency as a (seq, obj_id, chunk_id, nbytes) record.
func sampleAndDetect(img image.Image, layout SpareLayout) ([3]int64, error) {
	var zero [3]int64

	blockSize := layout.PageSize*layout.ChunksPerBlock + layout.SpareSize*layout.ChunksPerBlock
	imgSize := img.Size()

	var samples []sampleRec

	for blk := int64(0); blk < blocksToTest; blk++ {
		blockOff := blk * blockSize
		if blockOff >= imgSize {
			break
		}

		lastChunkOff := blockOff + (layout.ChunksPerBlock-1)*(layout.PageSize+layout.SpareSize)
		lastSpare := make([]byte, layout.SpareSize)
		if lastChunkOff+layout.PageSize+layout.SpareSize <= imgSize {
			if _, err := img.ReadAt(lastChunkOff+layout.PageSize, lastSpare); err == nil {
				if allBytes(lastSpare, 0x00) || allBytes(lastSpare, 0xFF) {
					continue // blank block, not necessarily end-of-image: keep sampling
				}
			}
		}

		for ch := int64(0); ch < chunksToTest && len(samples) < blocksToTest*chunksToTest; ch++ {
			chunkOff := blockOff + ch*(layout.PageSize+layout.SpareSize)
			if chunkOff+layout.PageSize+layout.SpareSize > imgSize {
				break
			}
			spare := make([]byte, layout.SpareSize)
			if _, err := img.ReadAt(chunkOff+layout.PageSize, spare); err != nil {
				continue
			}
			samples = append(samples, sampleRec{spare: spare})
			if len(samples) >= minChunksRead*4 {
				break
			}
		}
	}

	if len(samples) < minChunksRead {
		return zero, tsk.Errorf(tsk.KindMagic,
			"yaffs2: could not auto-detect spare-area layout (only %d usable spares sampled, need %d); "+
				"supply page_size/spare_size/spare_seq_offset/spare_obj_id_offset/spare_chunk_id_offset in a .yaffs2_config sidecar file", len(samples), minChunksRead)
	}

	type verdict struct {
		offset int64
		good   bool
	}
	var candidates []verdict

	for off := int64(0); off+windowSize <= layout.SpareSize; off++ {
		good := true
		var prevSeq uint32
		havePrev := false
		for _, s := range samples {
			w := s.spare[off : off+windowSize]
			seq := endian.LittleEndian.Uint32(w[0:4])
			objID := endian.LittleEndian.Uint32(w[4:8])

			if seq == 0 || seq == 0xFFFFFFFF {
				good = false
				break
			}
			if objID == 0 {
				good = false
				break
			}
			if allBytesEqual(w) {
				good = false
				break
			}
			if havePrev && seq < prevSeq {
				good = false
				break
			}
			prevSeq = seq
			havePrev = true
		}
		if good {
			candidates = append(candidates, verdict{offset: off, good: w0IsNotAllFF(samples, off)})
		}
	}

	if len(candidates) == 0 {
		return zero, tsk.Errorf(tsk.KindMagic, "yaffs2: no self-consistent spare-tag window found during auto-detection")
	}

	best := candidates[0]
	for _, c := range candidates {
		if c.good {
			best = c
			break
		}
	}

	return [3]int64{best.offset, best.offset + 4, best.offset + 8}, nil
}

type sampleRec struct{ spare []byte }

func w0IsNotAllFF(samples []sampleRec, off int64) bool {
	for _, s := range samples {
		if s.spare[off] != 0xFF {
			return true
		}
	}
	return false
}

func allBytes(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}

func allBytesEqual(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, x := range b {
		if x != b[0] {
			return false
		}
	}
	return true
}
