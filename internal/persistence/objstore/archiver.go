package objstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Uploader is the part of Client the archiver needs.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath string) error
}

type ArchiverOptions struct {
	// Prefix and SessionID form the key of every upload:
	// <prefix>/<session>/<file name>.
	Prefix    string
	SessionID string

	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long Enqueue waits on a full queue before it
	// drops the segment.
	EnqueueWait time.Duration
	Attempts    int
	Backoff     time.Duration
	Logger      *log.Logger
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	EnqueuedTotal       uint64 `json:"enqueued_total"`
	QueueSaturatedTotal uint64 `json:"queue_saturated_total"`
	DroppedTotal        uint64 `json:"dropped_total"`
	UploadSuccessTotal  uint64 `json:"upload_success_total"`
	UploadFailTotal     uint64 `json:"upload_fail_total"`
	LastSuccessUnix     int64  `json:"last_success_unix"`
	LastErrorUnix       int64  `json:"last_error_unix"`
}

// Archiver uploads closed trace segments in the background.
type Archiver struct {
	up   Uploader
	opts ArchiverOptions

	jobs   chan string
	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once

	enqueued    atomic.Uint64
	saturated   atomic.Uint64
	dropped     atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	lastOKUnix  atomic.Int64
	lastErrUnix atomic.Int64
}

func NewArchiver(up Uploader, opts ArchiverOptions) *Archiver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 256
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")

	a := &Archiver{up: up, opts: opts, jobs: make(chan string, opts.QueueCapacity)}
	for i := 0; i < opts.Workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for p := range a.jobs {
				a.upload(p)
			}
		}()
	}
	return a
}

// Enqueue schedules localPath for upload. It is safe to pass as a segment
// OnClose hook; calls after Close are ignored.
func (a *Archiver) Enqueue(localPath string) {
	if a == nil || a.closed.Load() {
		return
	}
	a.enqueued.Add(1)
	select {
	case a.jobs <- localPath:
		return
	default:
	}

	a.saturated.Add(1)
	timer := time.NewTimer(a.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case a.jobs <- localPath:
	case <-timer.C:
		n := a.dropped.Add(1)
		a.printf("archive drop local=%s reason=queue_saturated dropped_total=%d", localPath, n)
	}
}

// Close waits for queued uploads to finish. It must not race with Enqueue;
// close the segment writers first.
func (a *Archiver) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.jobs)
		a.wg.Wait()
	})
}

func (a *Archiver) Stats() Stats {
	if a == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(a.jobs),
		QueueCapacity:       cap(a.jobs),
		EnqueuedTotal:       a.enqueued.Load(),
		QueueSaturatedTotal: a.saturated.Load(),
		DroppedTotal:        a.dropped.Load(),
		UploadSuccessTotal:  a.succeeded.Load(),
		UploadFailTotal:     a.failed.Load(),
		LastSuccessUnix:     a.lastOKUnix.Load(),
		LastErrorUnix:       a.lastErrUnix.Load(),
	}
}

// Key is the object key localPath is uploaded under.
func (a *Archiver) Key(localPath string) string {
	parts := []string{}
	if a.opts.Prefix != "" {
		parts = append(parts, a.opts.Prefix)
	}
	if a.opts.SessionID != "" {
		parts = append(parts, a.opts.SessionID)
	}
	parts = append(parts, filepath.Base(localPath))
	return path.Join(parts...)
}

func (a *Archiver) upload(localPath string) {
	if _, err := os.Stat(localPath); err != nil {
		a.printf("archive skip local=%s err=%v", localPath, err)
		return
	}
	key := a.Key(localPath)
	if err := a.uploadWithRetry(key, localPath); err != nil {
		a.failed.Add(1)
		a.lastErrUnix.Store(time.Now().UTC().Unix())
		a.printf("archive upload failed key=%s err=%v", key, err)
		return
	}
	a.succeeded.Add(1)
	a.lastOKUnix.Store(time.Now().UTC().Unix())
	a.printf("archive uploaded key=%s", key)
}

func (a *Archiver) uploadWithRetry(key, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= a.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := a.up.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < a.opts.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * a.opts.Backoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", a.opts.Attempts, lastErr)
}

func (a *Archiver) printf(format string, args ...any) {
	if a.opts.Logger != nil {
		a.opts.Logger.Printf(format, args...)
	}
}
