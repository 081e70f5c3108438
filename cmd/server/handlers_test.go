package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/persistence/indexdb"
	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

type fakeIndex struct {
	rows []lootman.TraceEntry
}

func (f *fakeIndex) RecordQuery(e lootman.TraceEntry) { f.rows = append(f.rows, e) }
func (f *fakeIndex) Close() error                     { return nil }
func (f *fakeIndex) UpsertCatalogs(string, *catalogs.Catalogs, tuning.Tuning) error {
	return nil
}
func (f *fakeIndex) Stats() indexdb.Stats {
	return indexdb.Stats{QueueCapacity: 8, WrittenTotal: uint64(len(f.rows))}
}

func newTestDeps(t *testing.T) (serverDeps, *fakeIndex) {
	t.Helper()
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	quiet := log.New(io.Discard, "", 0)
	w, err := world.Load(filepath.Join(root, "configs", "world.json"), cats, quiet)
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	idx := &fakeIndex{}
	svc := lootman.New(w, lootman.Config{Tuning: tuning.Defaults(), Logger: quiet, Index: idx})
	t.Cleanup(svc.Close)
	return serverDeps{svc: svc, idx: idx, sessionID: "S1", admin: true, logger: quiet}, idx
}

func postQuery(t *testing.T, mux http.Handler, req protocol.ReqMsg, header http.Header) (*httptest.ResponseRecorder, protocol.RespMsg) {
	t.Helper()
	b, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(b))
	for k, v := range header {
		r.Header[k] = v
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	var resp protocol.RespMsg
	if rec.Code != http.StatusForbidden {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode resp: %v body=%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

func TestQueryHandler(t *testing.T) {
	d, idx := newTestDeps(t)
	mux := newMux(d)

	rec, resp := postQuery(t, mux, protocol.ReqMsg{
		ProtocolVersion: protocol.Version,
		ReqID:           "R1",
		Op:              protocol.OpJunk,
		Args:            protocol.ReqArgs{Owner: 0x14},
	}, nil)
	if rec.Code != http.StatusOK || !resp.OK || resp.ReqID != "R1" {
		t.Fatalf("status=%d resp=%+v", rec.Code, resp)
	}
	if len(resp.Forms) != 1 || resp.Forms[0].ID != 0x00059B02 {
		t.Fatalf("junk forms: %+v", resp.Forms)
	}
	if len(idx.rows) != 1 || idx.rows[0].Op != "junk" {
		t.Fatalf("index rows: %+v", idx.rows)
	}

	rec, resp = postQuery(t, mux, protocol.ReqMsg{ProtocolVersion: "9.9", ReqID: "R2", Op: protocol.OpJunk}, nil)
	if rec.Code != http.StatusBadRequest || resp.Code != protocol.ErrProtoVersion {
		t.Fatalf("status=%d resp=%+v", rec.Code, resp)
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rec.Code)
	}
}

func TestQueryHandler_Token(t *testing.T) {
	d, _ := newTestDeps(t)
	d.wsToken = "s3cret"
	mux := newMux(d)

	req := protocol.ReqMsg{ReqID: "R1", Op: protocol.OpCachedCells}
	if rec, _ := postQuery(t, mux, req, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("missing token status=%d", rec.Code)
	}
	rec, resp := postQuery(t, mux, req, http.Header{"X-Lootman-Token": {"s3cret"}})
	if rec.Code != http.StatusOK || !resp.OK || len(resp.Cells) != 2 {
		t.Fatalf("status=%d resp=%+v", rec.Code, resp)
	}
}

func TestAdminState_LoopbackOnly(t *testing.T) {
	d, _ := newTestDeps(t)
	mux := newMux(d)

	r := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	r.RemoteAddr = "10.0.0.5:4444"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	r.RemoteAddr = "127.0.0.1:4444"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback status=%d", rec.Code)
	}
	var st adminState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SessionID != "S1" || len(st.Cells) != 3 || len(st.CachedCells) != 2 || st.Index == nil {
		t.Fatalf("state: %+v", st)
	}
	if st.Welcome.Catalogs.FormsDigest == "" {
		t.Fatalf("expected catalog digests in state")
	}
}

func TestAdminDisabled(t *testing.T) {
	d, _ := newTestDeps(t)
	d.admin = false
	mux := newMux(d)

	r := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	r.RemoteAddr = "127.0.0.1:4444"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRegisterIndexStats(t *testing.T) {
	d, idx := newTestDeps(t)
	d.svc.Junk(context.Background(), 0x14)

	reg := prometheus.NewRegistry()
	if err := registerIndexStats(reg, idx); err != nil {
		t.Fatalf("register: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
		if mf.GetName() == "lootman_index_written_total" && mf.GetMetric()[0].GetCounter().GetValue() != 1 {
			t.Fatalf("written_total=%v", mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	if !strings.Contains(strings.Join(names, ","), "lootman_index_queue_depth") {
		t.Fatalf("metrics: %v", names)
	}
	if err := registerIndexStats(reg, nil); err != nil {
		t.Fatalf("nil index: %v", err)
	}
}

func TestPrepareDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "nested")
	if err := prepareDataDir(dir); err != nil {
		t.Fatalf("create: %v", err)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("expected directory at %s: %v", dir, err)
	}

	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := prepareDataDir(file); err == nil {
		t.Fatalf("expected error when the data path is a file")
	}
	if err := prepareDataDir(filepath.Join(file, "sub")); err == nil {
		t.Fatalf("expected error below a file")
	}
}

func TestOpenRuntimeIndex_Env(t *testing.T) {
	t.Setenv("LOOTMAN_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(t.TempDir(), "S1", false, nil); err != nil || idx != nil {
		t.Fatalf("none backend: idx=%v err=%v", idx, err)
	}
	t.Setenv("LOOTMAN_INDEX_BACKEND", "remote")
	t.Setenv("LOOTMAN_INDEX_INGEST_URL", "")
	if _, err := openRuntimeIndex(t.TempDir(), "S1", false, nil); err == nil {
		t.Fatalf("expected error for empty ingest url")
	}
	t.Setenv("LOOTMAN_INDEX_BACKEND", "mongo")
	if _, err := openRuntimeIndex(t.TempDir(), "S1", false, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	t.Setenv("LOOTMAN_INDEX_BACKEND", "sqlite")
	idx, err := openRuntimeIndex(t.TempDir(), "S1", false, nil)
	if err != nil || idx == nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	_ = idx.Close()
}
