package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable copy of the catalogs in use and of
// every facade call. Writes are queued and applied by one goroutine in
// batched transactions; the trace files remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan lootman.TraceEntry
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal   atomic.Uint64
	writeTotal  atomic.Uint64
	commitFails atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	WrittenTotal      uint64 `json:"written_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan lootman.TraceEntry, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queries (
			trace_id TEXT PRIMARY KEY,
			ts_ms INTEGER NOT NULL,
			op TEXT NOT NULL,
			status TEXT NOT NULL,
			subject TEXT NOT NULL,
			result_count INTEGER NOT NULL,
			elapsed_us INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_op_ts ON queries(op, ts_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_subject_ts ON queries(subject, ts_ms);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordQuery queues e. It never blocks: when the writer falls behind the
// entry is dropped and counted.
func (s *SQLiteIndex) RecordQuery(e lootman.TraceEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropTotal.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		QueueDroppedTotal: s.dropTotal.Load(),
		WrittenTotal:      s.writeTotal.Load(),
		FlushFailTotal:    s.commitFails.Load(),
	}
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// catalogRows returns the raw catalog files plus the applied tuning, each
// with its digest.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	read := func(name, file, digest string) {
		if configDir == "" || digest == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil || len(b) == 0 {
			return
		}
		rows = append(rows, catalogRow{name: name, digest: digest, json: b})
	}
	if cats != nil {
		read("forms", "forms.json", cats.Forms.Digest)
		read("recipes", "recipes.json", cats.Crafting.Digest)
		read("injection", "injection.json", cats.Injection.Digest)
	}
	if digest, b := tune.Digest(); digest != "" {
		rows = append(rows, catalogRow{name: "tuning", digest: digest, json: b})
	}
	return rows
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := catalogRows(configDir, cats, tune)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type CatalogDigest struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func (s *SQLiteIndex) CatalogDigests(ctx context.Context) ([]CatalogDigest, error) {
	return CatalogDigests(ctx, s.db)
}

func CatalogDigests(ctx context.Context, db *sql.DB) ([]CatalogDigest, error) {
	rows, err := db.QueryContext(ctx, `SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CatalogDigest
	for rows.Next() {
		var d CatalogDigest
		if err := rows.Scan(&d.Name, &d.Digest, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type QueryRow struct {
	TraceID     string `json:"trace_id"`
	TimeMS      int64  `json:"ts_ms"`
	Op          string `json:"op"`
	Status      string `json:"status"`
	Subject     string `json:"subject"`
	ResultCount int    `json:"result_count"`
	ElapsedUS   int64  `json:"elapsed_us"`
	Error       string `json:"error,omitempty"`
}

type QueryFilter struct {
	Op      string
	Subject string
	Limit   int
}

func (s *SQLiteIndex) RecentQueries(ctx context.Context, f QueryFilter) ([]QueryRow, error) {
	return RecentQueries(ctx, s.db, f)
}

// RecentQueries lists indexed calls, newest first.
func RecentQueries(ctx context.Context, db *sql.DB, f QueryFilter) ([]QueryRow, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	var (
		where []string
		args  []any
	)
	if f.Op != "" {
		where = append(where, "op=?")
		args = append(args, f.Op)
	}
	if f.Subject != "" {
		where = append(where, "subject=?")
		args = append(args, strings.ToUpper(f.Subject))
	}
	q := `SELECT trace_id,ts_ms,op,status,subject,result_count,elapsed_us,COALESCE(error,'') FROM queries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts_ms DESC, trace_id LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueryRow
	for rows.Next() {
		var r QueryRow
		if err := rows.Scan(&r.TraceID, &r.TimeMS, &r.Op, &r.Status, &r.Subject, &r.ResultCount, &r.ElapsedUS, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type OpSummary struct {
	Op           string  `json:"op"`
	Calls        int     `json:"calls"`
	Errors       int     `json:"errors"`
	AvgElapsedUS float64 `json:"avg_elapsed_us"`
}

// Summary aggregates indexed calls per op.
func Summary(ctx context.Context, db *sql.DB) ([]OpSummary, error) {
	rows, err := db.QueryContext(ctx, `SELECT op, COUNT(*), SUM(CASE WHEN status='error' THEN 1 ELSE 0 END), AVG(elapsed_us) FROM queries GROUP BY op ORDER BY op`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpSummary
	for rows.Next() {
		var r OpSummary
		if err := rows.Scan(&r.Op, &r.Calls, &r.Errors, &r.AvgElapsedUS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertQuery, _ := s.db.Prepare(`INSERT OR REPLACE INTO queries(trace_id,ts_ms,op,status,subject,result_count,elapsed_us,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertQuery != nil {
			_ = insertQuery.Close()
		}
	}()

	var (
		tx            *sql.Tx
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		pending = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.commitFails.Add(1)
		} else {
			s.writeTotal.Add(uint64(pending))
		}
		tx = nil
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.commitFails.Add(1)
		tx = nil
		pending = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		begin()
		if tx == nil || insertQuery == nil {
			continue
		}
		raw, _ := json.Marshal(e)
		var errText any
		if e.Error != "" {
			errText = e.Error
		}
		if _, err := tx.Stmt(insertQuery).Exec(
			e.TraceID,
			e.TimeMS,
			e.Op,
			e.Status,
			e.SubjectID().String(),
			e.Count(),
			e.ElapsedUS,
			errText,
			string(raw),
		); err != nil {
			rollback()
			continue
		}
		pending++
		// Commit once the queue drains so readers see entries promptly.
		if pending >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
