package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"lootman.ai/internal/lootman"
	persistlog "lootman.ai/internal/persistence/log"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

func main() {
	var (
		worldPath  = flag.String("world", "", "path to world snapshot the traces were recorded against (default: <configs>/world.json)")
		traceDir   = flag.String("trace", "./data/trace", "dir containing trace-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to lootman.yaml (default: <configs>/lootman.yaml)")
		op         = flag.String("op", "", "only verify this op (optional)")
		keepGoing  = flag.Bool("keep_going", false, "report every mismatch instead of stopping at the first")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "lootman.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	wp := *worldPath
	if wp == "" {
		wp = filepath.Join(*configDir, "world.json")
	}
	quiet := log.New(io.Discard, "", 0)
	w, err := world.Load(wp, cats, quiet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load world:", err)
		os.Exit(1)
	}

	files, err := persistlog.ListTraceFiles(*traceDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list traces:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no trace files found in", *traceDir)
		os.Exit(1)
	}

	last := &lastEntry{}
	svc := lootman.New(w, lootman.Config{Tuning: tune, Logger: quiet, Trace: last})
	defer svc.Close()

	res, err := verify(context.Background(), svc, last, files, *op, *keepGoing, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay: checked=%d skipped=%d mismatched=%d files=%d\n", res.checked, res.skipped, res.mismatched, len(files))
	if res.mismatched > 0 {
		os.Exit(1)
	}
}

// lastEntry keeps the most recent trace entry the service produced.
type lastEntry struct {
	mu sync.Mutex
	e  lootman.TraceEntry
}

func (l *lastEntry) WriteTrace(e lootman.TraceEntry) error {
	l.mu.Lock()
	l.e = e
	l.mu.Unlock()
	return nil
}

func (l *lastEntry) get() lootman.TraceEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e
}

type result struct {
	checked, skipped, mismatched int
}

var errMismatch = errors.New("outcome mismatch")

// verify reruns every entry in files, in order. Cell load changes are always
// rerun so later queries see the recorded world state; only filtered ops are
// compared.
func verify(ctx context.Context, svc *lootman.Service, last *lastEntry, files []string, op string, keepGoing bool, report io.Writer) (result, error) {
	var res result
	for _, path := range files {
		err := persistlog.ReadTraceFile(path, func(e lootman.TraceEntry) error {
			if op != "" && e.Op != op && e.Op != lootman.OpSetCellLoaded {
				res.skipped++
				return nil
			}
			if err := svc.Rerun(ctx, e); err != nil {
				return fmt.Errorf("%s: trace %s: %w", filepath.Base(path), e.TraceID, err)
			}
			if op != "" && e.Op != op {
				return nil
			}
			res.checked++
			if d := lootman.Diff(e, last.get()); d != "" {
				res.mismatched++
				fmt.Fprintf(report, "%s: trace %s (%s): %s\n", filepath.Base(path), e.TraceID, e.Op, d)
				if !keepGoing {
					return errMismatch
				}
			}
			return nil
		})
		if errors.Is(err, errMismatch) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
