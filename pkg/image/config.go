package image

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// YAFFS2Config is the parsed form of the `<image>.yaffs2_config` sidecar
// file. All fields are optional; zero means "not supplied, use default or
// run auto-detection".
type YAFFS2Config struct {
	PageSize       int64
	SpareSize      int64
	ChunksPerBlock int64

	SpareSeqOffset     int64
	SpareObjIDOffset   int64
	SpareChunkIDOffset int64

	hasSeqOffset, hasObjIDOffset, hasChunkIDOffset bool
}

// HasOffsets reports whether all three spare-field offsets were supplied.
func (c *YAFFS2Config) HasOffsets() bool {
	return c.hasSeqOffset && c.hasObjIDOffset && c.hasChunkIDOffset
}

var yaffs2ConfigKeys = map[string]bool{
	"spare_seq_offset":     true,
	"spare_obj_id_offset":  true,
	"spare_chunk_id_offset": true,
	"page_size":            true,
	"spare_size":           true,
	"chunks_per_block":     true,
}

// SidecarConfigPath returns the conventional sidecar path for an image path.
func SidecarConfigPath(imagePath string) string {
	return imagePath + ".yaffs2_config"
}

// LoadYAFFS2Config reads and validates the sidecar configuration file at
// path. A missing file is not an error: it returns a zero-value config,
// letting the caller fall back to defaults/auto-detection. A malformed file
// (unknown key, non-integer value, partial offset specification, or an
// offset that doesn't leave room for a 4-byte field within spare_size) is an
// error.
func LoadYAFFS2Config(path string) (*YAFFS2Config, error) {

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &YAFFS2Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &YAFFS2Config{
		PageSize:       2048,
		SpareSize:      64,
		ChunksPerBlock: 64,
	}

	var sawSeq, sawObj, sawChunk bool

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s:%d: expected key = value, got %q", path, lineNo, line)
		}

		key := strings.TrimSpace(parts[0])
		valStr := strings.TrimSpace(parts[1])

		if !yaffs2ConfigKeys[key] {
			return nil, fmt.Errorf("%s:%d: unknown key %q", path, lineNo, key)
		}

		val, err := strconv.ParseInt(valStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: value for %q is not an integer: %q", path, lineNo, key, valStr)
		}

		switch key {
		case "page_size":
			cfg.PageSize = val
		case "spare_size":
			cfg.SpareSize = val
		case "chunks_per_block":
			cfg.ChunksPerBlock = val
		case "spare_seq_offset":
			cfg.SpareSeqOffset = val
			sawSeq = true
		case "spare_obj_id_offset":
			cfg.SpareObjIDOffset = val
			sawObj = true
		case "spare_chunk_id_offset":
			cfg.SpareChunkIDOffset = val
			sawChunk = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if sawSeq || sawObj || sawChunk {
		if !(sawSeq && sawObj && sawChunk) {
			return nil, fmt.Errorf("%s: spare offset keys must be specified all together or not at all", path)
		}
		for name, off := range map[string]int64{
			"spare_seq_offset":      cfg.SpareSeqOffset,
			"spare_obj_id_offset":   cfg.SpareObjIDOffset,
			"spare_chunk_id_offset": cfg.SpareChunkIDOffset,
		} {
			if off+4 > cfg.SpareSize {
				return nil, fmt.Errorf("%s: %s (%d) leaves no room for a 4-byte field in a %d-byte spare area", path, name, off, cfg.SpareSize)
			}
		}
		cfg.hasSeqOffset, cfg.hasObjIDOffset, cfg.hasChunkIDOffset = true, true, true
	}

	return cfg, nil
}
