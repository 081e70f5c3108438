package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lootman.ai/internal/persistence/snapshot"
)

func TestArchiveWorldSnapshot_NumbersGenerations(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "world.json.zst")
	want := []byte("packed")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	w := snapshot.WorldV1{Cells: []snapshot.CellV1{
		{ID: 0xE0A1, Loaded: true, Refs: []snapshot.RefV1{{ID: 1}, {ID: 2}}},
		{ID: 0xE0A2, Refs: []snapshot.RefV1{{ID: 3}}},
	}}

	meta, archivedPath, err := ArchiveWorldSnapshot(dir, src, w)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	sum := sha256.Sum256(want)
	if meta.Generation != 1 || meta.Cells != 2 || meta.LoadedCells != 1 || meta.Refs != 3 || meta.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("meta: %+v", meta)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", got, want)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		t.Fatalf("expected meta.json: %v", err)
	}
	var onDisk WorldArchiveMeta
	if err := json.Unmarshal(b, &onDisk); err != nil || onDisk.Generation != 1 {
		t.Fatalf("meta.json: %+v err=%v", onDisk, err)
	}

	meta, archivedPath, err = ArchiveWorldSnapshot(dir, src, w)
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if meta.Generation != 2 || filepath.Base(filepath.Dir(archivedPath)) != "world_002" {
		t.Fatalf("second generation: %+v at %s", meta, archivedPath)
	}
}

func TestArchiveWorldSnapshot_MissingSource(t *testing.T) {
	if _, _, err := ArchiveWorldSnapshot(t.TempDir(), filepath.Join(t.TempDir(), "nope.json"), snapshot.WorldV1{}); err == nil {
		t.Fatalf("expected error for missing snapshot")
	}
}
