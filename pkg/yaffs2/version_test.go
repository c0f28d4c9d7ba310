package yaffs2

import (
	"bytes"
	"testing"

	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

func TestBuildVersionsSplitsOnDistinctRealHeaders(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 3*chunkSize)

	hdr1 := buildHeaderPage(ObjTypeFile, ObjIDRoot, "v1", 10)
	hdr2 := buildHeaderPage(ObjTypeFile, ObjIDRoot, "v2", 20)
	hdr3 := buildHeaderPage(ObjTypeFile, ObjIDRoot, "v3", 30)

	writeChunk(data, layout, 0*chunkSize, hdr1, 0x2000, 42, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdr2, 0x3000, 42, headerChunkID)
	writeChunk(data, layout, 2*chunkSize, hdr3, 0x4000, 42, headerChunkID)

	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}

	objIdx, ok := c.objectByID(42)
	if !ok {
		t.Fatal("object 42 not found")
	}
	obj := c.Objects[objIdx]

	var chain []CacheVersion
	for vi := obj.LatestVersion; vi != noIndex; vi = c.Versions[vi].Prior {
		chain = append(chain, c.Versions[vi])
	}
	if len(chain) != 3 {
		t.Fatalf("got %d versions in chain, want 3", len(chain))
	}
	// chain[0] is latest (highest seq/version number), chain[2] the oldest.
	if chain[0].SeqNumber != 0x4000 || chain[0].VersionNumber != 3 {
		t.Errorf("latest version = %+v, want seq 0x4000 version 3", chain[0])
	}
	if chain[1].SeqNumber != 0x3000 || chain[1].VersionNumber != 2 {
		t.Errorf("middle version = %+v, want seq 0x3000 version 2", chain[1])
	}
	if chain[2].SeqNumber != 0x2000 || chain[2].VersionNumber != 1 {
		t.Errorf("oldest version = %+v, want seq 0x2000 version 1", chain[2])
	}

	if c.MaxVersion != 3 {
		t.Errorf("MaxVersion = %d, want 3", c.MaxVersion)
	}
	wantLastInum := uint32(EncodeInum(3, 42)) + 1
	if c.LastInum != wantLastInum {
		t.Errorf("LastInum = %d, want %d", c.LastInum, wantLastInum)
	}

	// The latest version's header should decode back to "v3".
	page, err := c.readHeaderPage(img, chain[0].HeaderChunk)
	if err != nil {
		t.Fatalf("readHeaderPage: %v", err)
	}
	if got := parseHeader(page).Name; got != "v3" {
		t.Errorf("latest version header name = %q, want %q", got, "v3")
	}
}

func TestBuildVersionsUnlinkedFallbackHeaderIsReplaced(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	fallback := buildHeaderPage(ObjTypeFile, ObjIDUnlinked, "orphaned", 5)
	real := buildHeaderPage(ObjTypeFile, ObjIDRoot, "real-name", 5)

	// Same sequence number: the fallback (parent=$Unlinked) header chunk is
	// folded in place rather than starting its own version once a real
	// header with the same seq shows up.
	writeChunk(data, layout, 0*chunkSize, fallback, seqMin, 42, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, real, seqMin, 42, headerChunkID)

	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}

	objIdx, _ := c.objectByID(42)
	obj := c.Objects[objIdx]
	if obj.LatestVersion == noIndex {
		t.Fatal("expected at least one version")
	}
	ver := c.Versions[obj.LatestVersion]
	if ver.Prior != noIndex {
		t.Errorf("expected a single version (same seq, fallback folded in place), got a Prior chain")
	}
	if ver.HeaderChunk != 1 {
		t.Errorf("HeaderChunk = %d, want 1 (the real header replacing the fallback, same seq)", ver.HeaderChunk)
	}
}

func TestBuildVersionsDenoisesRepeatDirectoryHeader(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	hdrA := buildHeaderPage(ObjTypeDirectory, ObjIDRoot, "mydir", 0)
	hdrB := buildHeaderPage(ObjTypeDirectory, ObjIDRoot, "mydir", 0)

	// Two real directory headers, same seq, same name: de-noised into one
	// version rather than split.
	writeChunk(data, layout, 0*chunkSize, hdrA, seqMin, 50, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdrB, seqMin, 50, headerChunkID)

	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}

	objIdx, _ := c.objectByID(50)
	obj := c.Objects[objIdx]
	ver := c.Versions[obj.LatestVersion]
	if ver.Prior != noIndex {
		t.Errorf("expected the repeat directory header to fold into one version, got a Prior chain")
	}
	// The in-place replacement keeps the second (later) header chunk.
	if ver.HeaderChunk != 1 {
		t.Errorf("HeaderChunk = %d, want 1 (replaced by the later identical header)", ver.HeaderChunk)
	}
}

// shrinkLayout uses a real-world page size, large enough to carry the
// trailing is_shrink flag that testLayout's 512-byte pages can't.
func shrinkLayout() SpareLayout {
	return SpareLayout{PageSize: 2048, SpareSize: 64, ChunksPerBlock: 64, SeqOffset: 0, ObjIDOffset: 4, ChunkIDOffset: 8}
}

func buildHeaderPageWithShrink(objType, parentID uint32, name string, size int32, shrink bool) []byte {
	page := make([]byte, 2048)
	putLE32(page[0:4], objType)
	putLE32(page[4:8], parentID)
	copy(page[headerNameOff:headerNameOff+len(name)], name)
	putLE32(page[headerModeOff:headerModeOff+4], 0o644)
	putLE32(page[headerSizeOff:headerSizeOff+4], uint32(size))
	if shrink {
		putLE32(page[headerShrinkOff:headerShrinkOff+4], 1)
	}
	return page
}

func TestBuildVersionsDecodesShrinkFlag(t *testing.T) {
	layout := shrinkLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	hdr1 := buildHeaderPageWithShrink(ObjTypeFile, ObjIDRoot, "big", 1000, false)
	hdr2 := buildHeaderPageWithShrink(ObjTypeFile, ObjIDRoot, "big", 10, true)

	writeChunk(data, layout, 0*chunkSize, hdr1, 0x2000, 42, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdr2, 0x3000, 42, headerChunkID)

	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}

	objIdx, _ := c.objectByID(42)
	obj := c.Objects[objIdx]

	latest := c.Versions[obj.LatestVersion]
	if !latest.IsShrink {
		t.Errorf("latest version IsShrink = false, want true")
	}
	prior := c.Versions[latest.Prior]
	if prior.IsShrink {
		t.Errorf("prior version IsShrink = true, want false")
	}
}

func TestVersionIsShrinkReportsFlagPerVersion(t *testing.T) {
	layout := shrinkLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	hdr1 := buildHeaderPageWithShrink(ObjTypeFile, ObjIDRoot, "big", 1000, false)
	hdr2 := buildHeaderPageWithShrink(ObjTypeFile, ObjIDRoot, "big", 10, true)

	writeChunk(data, layout, 0*chunkSize, hdr1, 0x2000, 42, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdr2, 0x3000, 42, headerChunkID)

	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}
	c.LastInum = uint32(EncodeInum(c.MaxVersion, c.MaxObjID)) + 1

	fs := &FS{img: img, layout: layout, cache: c}

	latestShrink, err := fs.VersionIsShrink(tsk.Addr(EncodeInum(0, 42)))
	if err != nil {
		t.Fatalf("VersionIsShrink(latest): %v", err)
	}
	if !latestShrink {
		t.Errorf("latest version VersionIsShrink = false, want true")
	}

	oldestShrink, err := fs.VersionIsShrink(tsk.Addr(EncodeInum(1, 42)))
	if err != nil {
		t.Fatalf("VersionIsShrink(version 1): %v", err)
	}
	if oldestShrink {
		t.Errorf("oldest version VersionIsShrink = true, want false")
	}
}

func TestReadIsShrinkDegradesOnSmallPageSize(t *testing.T) {
	layout := testLayout() // PageSize 512, too small to carry is_shrink
	chunkSize := layout.chunkSize()
	data := make([]byte, chunkSize)

	c := newCache(layout)
	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	if got := c.readIsShrink(img, 0); got {
		t.Errorf("readIsShrink on a too-small page = true, want false")
	}
}
