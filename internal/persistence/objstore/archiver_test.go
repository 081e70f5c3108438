package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakeUploader) PutFile(ctx context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("unavailable")
	}
	f.keys = append(f.keys, key)
	return nil
}

func writeSegment(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestArchiver_UploadsWithSessionKey(t *testing.T) {
	up := &fakeUploader{}
	a := NewArchiver(up, ArchiverOptions{Prefix: "/lootman/", SessionID: "S1", Backoff: time.Millisecond})
	a.Enqueue(writeSegment(t, "trace-2026-03-01-12.jsonl.zst"))
	a.Close()

	if len(up.keys) != 1 || up.keys[0] != "lootman/S1/trace-2026-03-01-12.jsonl.zst" {
		t.Fatalf("keys: %v", up.keys)
	}
	st := a.Stats()
	if st.EnqueuedTotal != 1 || st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 || st.LastSuccessUnix == 0 {
		t.Fatalf("stats: %+v", st)
	}

	// Enqueue after Close is ignored.
	a.Enqueue("ignored")
	if a.Stats().EnqueuedTotal != 1 {
		t.Fatalf("enqueue after close counted")
	}
}

func TestArchiver_RetriesThenFails(t *testing.T) {
	up := &fakeUploader{fails: 1}
	a := NewArchiver(up, ArchiverOptions{Attempts: 2, Backoff: time.Millisecond})
	a.Enqueue(writeSegment(t, "trace-a.jsonl.zst"))
	a.Close()
	if st := a.Stats(); st.UploadSuccessTotal != 1 || len(up.keys) != 1 || up.keys[0] != "trace-a.jsonl.zst" {
		t.Fatalf("retry: stats=%+v keys=%v", st, up.keys)
	}

	up = &fakeUploader{fails: 5}
	a = NewArchiver(up, ArchiverOptions{Attempts: 2, Backoff: time.Millisecond})
	a.Enqueue(writeSegment(t, "trace-b.jsonl.zst"))
	a.Enqueue(filepath.Join(t.TempDir(), "missing.jsonl.zst"))
	a.Close()
	if st := a.Stats(); st.UploadFailTotal != 1 || st.UploadSuccessTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("fail: stats=%+v", st)
	}
}

func TestArchiver_NilSafe(t *testing.T) {
	var a *Archiver
	a.Enqueue("x")
	a.Close()
	if a.Stats() != (Stats{}) {
		t.Fatalf("nil stats")
	}
}
