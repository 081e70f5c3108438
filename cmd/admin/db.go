package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"lootman.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/lootman.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	op := fs.String("op", "", "op filter (queries)")
	subject := fs.String("subject", "", "subject form id filter (queries)")
	_ = fs.Parse(args)

	q := "catalogs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "lootman.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	f := indexdb.QueryFilter{Op: strings.TrimSpace(*op), Subject: strings.TrimSpace(*subject), Limit: *limit}
	if err := runDBQuery(context.Background(), db, q, f, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

// runDBQuery prints one JSON object per row of the named query.
func runDBQuery(ctx context.Context, db *sql.DB, q string, f indexdb.QueryFilter, out io.Writer) error {
	enc := json.NewEncoder(out)
	switch q {
	case "catalogs":
		rows, err := indexdb.CatalogDigests(ctx, db)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	case "queries":
		rows, err := indexdb.RecentQueries(ctx, db, f)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	case "summary":
		rows, err := indexdb.Summary(ctx, db)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown db query %q (want catalogs, queries or summary)", q)
	}
	return nil
}
