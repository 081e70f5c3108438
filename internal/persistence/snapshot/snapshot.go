package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"lootman.ai/internal/sim/model"
)

// WorldV1 is the on-disk world fixture: cells with their refs and inventories.
// Files ending in .zst are zstd-compressed JSON.
type WorldV1 struct {
	Cells []CellV1 `json:"cells"`
}

type CellV1 struct {
	ID       model.FormID `json:"id"`
	Interior bool         `json:"interior,omitempty"`
	Loaded   bool         `json:"loaded,omitempty"`
	PreVis   model.FormID `json:"previs,omitempty"`
	Refs     []RefV1      `json:"refs,omitempty"`
}

type RefV1 struct {
	ID        model.FormID                  `json:"id"`
	Base      model.FormID                  `json:"base"`
	Pos       [3]float64                    `json:"pos"`
	Flags     uint32                        `json:"flags,omitempty"`
	Mods      []model.FormID                `json:"mods,omitempty"`
	Workshop  bool                          `json:"workshop,omitempty"`
	Linked    map[model.FormID]model.FormID `json:"linked,omitempty"`
	Inventory []ItemV1                      `json:"inventory,omitempty"`
}

type ItemV1 struct {
	Form   model.FormID `json:"form"`
	Stacks []StackV1    `json:"stacks,omitempty"`
}

type StackV1 struct {
	Count    int32          `json:"count,omitempty"`
	RefCount int32          `json:"ref_count,omitempty"`
	Flags    uint32         `json:"flags,omitempty"`
	Mods     []model.FormID `json:"mods,omitempty"`
}

func compressed(path string) bool { return strings.HasSuffix(path, ".zst") }

// ReadRaw returns the decompressed JSON bytes of a world fixture.
func ReadRaw(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !compressed(path) {
		return io.ReadAll(bufio.NewReaderSize(f, 256*1024))
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := io.ReadAll(bufio.NewReaderSize(dec, 256*1024))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return raw, nil
}

func Decode(raw []byte) (WorldV1, error) {
	var w WorldV1
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return w, fmt.Errorf("decode world: %w", err)
	}
	return w, nil
}

func ReadWorld(path string) (WorldV1, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return WorldV1{}, err
	}
	return Decode(raw)
}

// WriteWorld writes w as JSON, zstd-compressed when path ends in .zst.
func WriteWorld(path string, w WorldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var out io.Writer = f
	if compressed(path) {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		defer enc.Close()
		out = enc
	}

	bw := bufio.NewWriterSize(out, 256*1024)
	je := json.NewEncoder(bw)
	je.SetIndent("", "  ")
	if err := je.Encode(&w); err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	return bw.Flush()
}
