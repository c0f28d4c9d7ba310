package yaffs2

import (
	"bytes"
	"testing"

	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

// buildFS scans and folds data into an FS the way Mount would, without
// needing a real spare-layout detection pass.
func buildFS(t *testing.T, data []byte, layout SpareLayout) *FS {
	t.Helper()
	img := image.NewRawImage(bytes.NewReader(data), int64(len(data)), 512)
	c, err := Scan(img, layout)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := BuildVersions(img, c); err != nil {
		t.Fatalf("BuildVersions: %v", err)
	}
	valid := make(map[int64]bool, len(c.Chunks))
	for _, ch := range c.Chunks {
		valid[ch.Offset] = true
	}
	return &FS{img: img, layout: layout, cache: c, chunkSize: layout.chunkSize(), validChunks: valid}
}

func TestDirOpenMetaListsChildrenOfRoot(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	hdrFile := buildHeaderPage(ObjTypeFile, ObjIDRoot, "hello.txt", 5)
	hdrDir := buildHeaderPage(ObjTypeDirectory, ObjIDRoot, "subdir", 0)
	writeChunk(data, layout, 0*chunkSize, hdrFile, seqMin, 10, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdrDir, seqMin, 11, headerChunkID)

	fs := buildFS(t, data, layout)

	meta := &tsk.Meta{Addr: tsk.Addr(EncodeInum(0, ObjIDRoot))}
	dir, res, err := fs.DirOpenMeta(meta)
	if err != nil {
		t.Fatalf("DirOpenMeta: %v", err)
	}
	if res != tsk.DirOk {
		t.Fatalf("DirOpenMeta result = %v, want DirOk", res)
	}

	var names []string
	for _, e := range dir.Entries {
		names = append(names, e.Name)
	}

	want := map[string]bool{"hello.txt": false, "subdir": false, "$Unlinked": false, "$Deleted": false, "$Orphan": false}
	for _, n := range names {
		if _, ok := want[n]; !ok {
			t.Errorf("unexpected entry %q in root listing: %v", n, names)
		}
		want[n] = true
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("expected entry %q in root listing, got %v", n, names)
		}
	}
}

func TestDirOpenMetaNonRootHasNoSyntheticEntries(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	hdrDir := buildHeaderPage(ObjTypeDirectory, ObjIDRoot, "subdir", 0)
	hdrChild := buildHeaderPage(ObjTypeFile, 20, "leaf.txt", 1)
	writeChunk(data, layout, 0*chunkSize, hdrDir, seqMin, 20, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdrChild, seqMin, 21, headerChunkID)

	fs := buildFS(t, data, layout)

	meta := &tsk.Meta{Addr: tsk.Addr(EncodeInum(0, 20))}
	dir, _, err := fs.DirOpenMeta(meta)
	if err != nil {
		t.Fatalf("DirOpenMeta: %v", err)
	}
	if len(dir.Entries) != 1 || dir.Entries[0].Name != "leaf.txt" {
		t.Fatalf("subdir listing = %+v, want only leaf.txt (no $Unlinked/$Deleted/$Orphan)", dir.Entries)
	}
}

func TestChildrenOfSuffixesHistoricalVersionName(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 2*chunkSize)

	// Two distinct real headers at different seqs: splits into two versions
	// of the same object, both named "photo.jpg".
	hdrV1 := buildHeaderPage(ObjTypeFile, ObjIDRoot, "photo.jpg", 100)
	hdrV2 := buildHeaderPage(ObjTypeFile, ObjIDRoot, "photo.jpg", 200)
	writeChunk(data, layout, 0*chunkSize, hdrV1, 0x2000, 42, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdrV2, 0x3000, 42, headerChunkID)

	fs := buildFS(t, data, layout)
	dir := fs.childrenOf(ObjIDRoot, false)

	var latest, historical *tsk.Name
	for i := range dir.Entries {
		e := &dir.Entries[i]
		switch e.Name {
		case "photo.jpg":
			latest = e
		case "photo.jpg#42,1.jpg":
			historical = e
		}
	}
	if latest == nil {
		t.Fatalf("expected a \"photo.jpg\" entry for the latest version, got %+v", dir.Entries)
	}
	if latest.Flags&tsk.NameAlloc == 0 {
		t.Errorf("latest version entry flags = %v, want NameAlloc", latest.Flags)
	}
	if historical == nil {
		t.Fatalf("expected a \"photo.jpg#42,1.jpg\" entry for the historical version, got %+v", dir.Entries)
	}
	if historical.Flags&tsk.NameUnalloc == 0 {
		t.Errorf("historical version entry flags = %v, want NameUnalloc", historical.Flags)
	}
	if historical.Addr != tsk.Addr(EncodeInum(1, 42)) {
		t.Errorf("historical version addr = %d, want EncodeInum(1, 42)", historical.Addr)
	}
}

func TestOrphanDirEntriesListsUnlinkedAndDeleted(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, 3*chunkSize)

	hdrLive := buildHeaderPage(ObjTypeFile, ObjIDRoot, "live.txt", 1)
	hdrUnlinked := buildHeaderPage(ObjTypeFile, ObjIDUnlinked, "removed.txt", 1)
	hdrDeleted := buildHeaderPage(ObjTypeFile, ObjIDDeleted, "gone.txt", 1)
	writeChunk(data, layout, 0*chunkSize, hdrLive, seqMin, 30, headerChunkID)
	writeChunk(data, layout, 1*chunkSize, hdrUnlinked, seqMin, 31, headerChunkID)
	writeChunk(data, layout, 2*chunkSize, hdrDeleted, seqMin, 32, headerChunkID)

	fs := buildFS(t, data, layout)
	dir := fs.orphanDirEntries()

	if len(dir.Entries) != 2 {
		t.Fatalf("got %d orphan entries, want 2 (obj 31, obj 32 only), entries: %+v", len(dir.Entries), dir.Entries)
	}
	seen := make(map[tsk.Addr]bool)
	for _, e := range dir.Entries {
		seen[e.Addr] = true
		if e.Flags&tsk.NameUnalloc == 0 {
			t.Errorf("orphan entry %+v: want NameUnalloc", e)
		}
	}
	if !seen[tsk.Addr(EncodeInum(0, 31))] || !seen[tsk.Addr(EncodeInum(0, 32))] {
		t.Errorf("orphan entries = %+v, want objects 31 and 32", dir.Entries)
	}
}

func TestDirOpenMetaOrphanAddrRoutesToOrphanDirEntries(t *testing.T) {
	layout := testLayout()
	chunkSize := layout.chunkSize()
	data := make([]byte, chunkSize)

	hdrUnlinked := buildHeaderPage(ObjTypeFile, ObjIDUnlinked, "removed.txt", 1)
	writeChunk(data, layout, 0, hdrUnlinked, seqMin, 31, headerChunkID)

	fs := buildFS(t, data, layout)

	meta := &tsk.Meta{Addr: tsk.Addr(fs.cache.LastInum)}
	dir, _, err := fs.DirOpenMeta(meta)
	if err != nil {
		t.Fatalf("DirOpenMeta: %v", err)
	}
	if len(dir.Entries) != 1 || dir.Entries[0].Addr != tsk.Addr(EncodeInum(0, 31)) {
		t.Fatalf("orphan dir listing = %+v, want object 31", dir.Entries)
	}
}

func TestSuffixVersionedNamePreservesExtension(t *testing.T) {
	got := suffixVersionedName("photo.jpg", 42, 3)
	want := "photo.jpg#42,3.jpg"
	if got != want {
		t.Errorf("suffixVersionedName = %q, want %q", got, want)
	}
}

func TestSuffixVersionedNameNoExtension(t *testing.T) {
	got := suffixVersionedName("README", 7, 1)
	want := "README#7,1"
	if got != want {
		t.Errorf("suffixVersionedName = %q, want %q", got, want)
	}
}
