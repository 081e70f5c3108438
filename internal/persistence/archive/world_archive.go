// Package archive keeps numbered copies of packed world snapshots so an
// earlier fixture can be restored after a repack.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lootman.ai/internal/persistence/snapshot"
)

type WorldArchiveMeta struct {
	Generation  int    `json:"generation"`
	Snapshot    string `json:"snapshot"`
	SHA256      string `json:"sha256"`
	Cells       int    `json:"cells"`
	LoadedCells int    `json:"loaded_cells"`
	Refs        int    `json:"refs"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveWorldSnapshot copies snapshotPath into `dataDir/archives/world_<NNN>/`
// using the next free generation number, and writes meta.json next to it.
func ArchiveWorldSnapshot(dataDir, snapshotPath string, w snapshot.WorldV1) (WorldArchiveMeta, string, error) {
	root := filepath.Join(dataDir, "archives")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return WorldArchiveMeta{}, "", err
	}
	gen, err := nextGeneration(root)
	if err != nil {
		return WorldArchiveMeta{}, "", err
	}

	archiveDir := filepath.Join(root, fmt.Sprintf("world_%03d", gen))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return WorldArchiveMeta{}, "", err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	sum, err := copyFile(snapshotPath, dst)
	if err != nil {
		return WorldArchiveMeta{}, "", err
	}

	meta := WorldArchiveMeta{
		Generation: gen,
		Snapshot:   filepath.Base(dst),
		SHA256:     sum,
		Cells:      len(w.Cells),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, c := range w.Cells {
		if c.Loaded {
			meta.LoadedCells++
		}
		meta.Refs += len(c.Refs)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return WorldArchiveMeta{}, "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return WorldArchiveMeta{}, "", err
	}
	return meta, dst, nil
}

func nextGeneration(root string) (int, error) {
	ents, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "world_") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), "world_%d", &n); err == nil && n > last {
			last = n
		}
	}
	return last + 1, nil
}

// copyFile copies src to dst and returns the hex sha256 of the bytes copied.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
