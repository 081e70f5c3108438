package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"lootman.ai/internal/persistence/archive"
	persistlog "lootman.ai/internal/persistence/log"
	"lootman.ai/internal/persistence/snapshot"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "query":
			queryCmd(os.Args[2:])
			return
		case "pack":
			packCmd(os.Args[2:])
			return
		case "check":
			checkCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := persistlog.ListTraceFiles(filepath.Join(*dataDir, "trace"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Println(filepath.Base(f))
	}
}

// packCmd validates a world snapshot and rewrites it, compressed when out
// ends in .zst.
func packCmd(args []string) {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	in := fs.String("in", "", "input world snapshot (.json or .json.zst)")
	out := fs.String("out", "", "output path (.json or .json.zst)")
	archiveDir := fs.String("archive", "", "data directory to keep a numbered copy of the packed world in (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*in) == "" || strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "missing -in or -out")
		os.Exit(2)
	}
	w, err := packWorld(*in, *out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pack:", err)
		os.Exit(1)
	}
	fmt.Printf("packed %s cells=%d -> %s\n", filepath.Base(*in), len(w.Cells), *out)
	if strings.TrimSpace(*archiveDir) == "" {
		return
	}
	meta, dst, err := archive.ArchiveWorldSnapshot(*archiveDir, *out, w)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archive:", err)
		os.Exit(1)
	}
	fmt.Printf("archived generation=%d sha256=%s -> %s\n", meta.Generation, meta.SHA256, dst)
}

func packWorld(in, out string) (snapshot.WorldV1, error) {
	raw, err := snapshot.ReadRaw(in)
	if err != nil {
		return snapshot.WorldV1{}, err
	}
	if err := catalogs.Validate("world", raw); err != nil {
		return snapshot.WorldV1{}, err
	}
	w, err := snapshot.Decode(raw)
	if err != nil {
		return snapshot.WorldV1{}, err
	}
	return w, snapshot.WriteWorld(out, w)
}

type checkReport struct {
	Forms          int    `json:"forms"`
	FormsDigest    string `json:"forms_digest"`
	Recipes        int    `json:"recipes"`
	RecipesDigest  string `json:"recipes_digest"`
	InjectionLists int    `json:"injection_lists"`
	TuningDigest   string `json:"tuning_digest"`
	Cells          int    `json:"cells"`
	LoadedCells    int    `json:"loaded_cells"`
	Refs           int    `json:"refs"`
	Warnings       int    `json:"warnings"`
}

// checkCmd loads the configs and a world the way the server does and
// reports what it found. Warnings are the log lines the world loader emitted.
func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	worldPath := fs.String("world", "", "world snapshot (default: <configs>/world.json)")
	_ = fs.Parse(args)

	rep, err := checkConfigs(*configDir, *worldPath, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check:", err)
		os.Exit(1)
	}
	printJSON(rep)
}

func checkConfigs(configDir, worldPath string, warn io.Writer) (checkReport, error) {
	var rep checkReport
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return rep, err
	}
	tune, err := tuning.Load(filepath.Join(configDir, "lootman.yaml"))
	if err != nil && !os.IsNotExist(err) {
		return rep, err
	}
	if err != nil {
		tune = tuning.Defaults()
	}
	if worldPath == "" {
		worldPath = filepath.Join(configDir, "world.json")
	}
	counter := &lineCounter{w: warn}
	w, err := world.Load(worldPath, cats, log.New(counter, "[world] ", 0))
	if err != nil {
		return rep, err
	}

	rep.Forms = len(cats.Forms.ByID)
	rep.FormsDigest = cats.Forms.Digest
	rep.Recipes = len(cats.Crafting.List)
	rep.RecipesDigest = cats.Crafting.Digest
	rep.InjectionLists = len(cats.Injection.Lists)
	rep.TuningDigest, _ = tune.Digest()
	for _, id := range w.CellIDs() {
		c, _ := w.LookupCell(id)
		rep.Cells++
		if c.Loaded3D() {
			rep.LoadedCells++
		}
		rep.Refs += len(c.Refs)
	}
	rep.Warnings = counter.n
	return rep, nil
}

type lineCounter struct {
	w io.Writer
	n int
}

func (c *lineCounter) Write(p []byte) (int, error) {
	c.n++
	if c.w == nil {
		return len(p), nil
	}
	return c.w.Write(p)
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
