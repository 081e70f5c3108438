package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/model"
	"lootman.ai/internal/sim/tuning"
)

func TestSQLiteIndex_CatalogsAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "lootman.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = idx.Close() }()

	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ctx := context.Background()
	digests, err := idx.CatalogDigests(ctx)
	if err != nil {
		t.Fatalf("digests: %v", err)
	}
	if len(digests) != 4 {
		t.Fatalf("expected forms, injection, recipes and tuning rows, got %+v", digests)
	}
	if digests[0].Name != "forms" || digests[0].Digest != cats.Forms.Digest {
		t.Fatalf("forms digest: %+v", digests[0])
	}

	now := time.Now().UnixMilli()
	idx.RecordQuery(lootman.TraceEntry{TraceID: "t1", TimeMS: now, Op: "find_nearby", Status: "ok", Subject: 0x14, Result: []model.FormID{1, 2}})
	idx.RecordQuery(lootman.TraceEntry{TraceID: "t2", TimeMS: now + 1, Op: "decompose", Status: "error", Item: &lootman.ItemRef{Ref: 0x100A02}, Error: "scrap: recipe cycle"})

	var rows []QueryRow
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rows, err = idx.RecentQueries(ctx, QueryFilter{})
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(rows) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[0].TraceID != "t2" || rows[0].Subject != "00100A02" || rows[0].Error == "" {
		t.Fatalf("newest row: %+v", rows[0])
	}
	if rows[1].ResultCount != 2 || rows[1].Subject != "00000014" {
		t.Fatalf("oldest row: %+v", rows[1])
	}

	only, err := idx.RecentQueries(ctx, QueryFilter{Op: "find_nearby", Subject: "00000014"})
	if err != nil || len(only) != 1 {
		t.Fatalf("filtered: %+v err=%v", only, err)
	}

	sum, err := Summary(ctx, idx.db)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum) != 2 || sum[0].Op != "decompose" || sum[0].Errors != 1 {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}
