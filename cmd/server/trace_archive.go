package main

import (
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"lootman.ai/internal/persistence/objstore"
)

// openTraceArchiver returns nil when LOOTMAN_TRACE_ARCHIVE is off.
func openTraceArchiver(sessionID string, logger *log.Logger) (*objstore.Archiver, error) {
	if !envBool("LOOTMAN_TRACE_ARCHIVE", false) {
		return nil, nil
	}
	client, err := objstore.New(objstore.Config{
		Endpoint:        os.Getenv("LOOTMAN_ARCHIVE_ENDPOINT"),
		Bucket:          os.Getenv("LOOTMAN_ARCHIVE_BUCKET"),
		AccessKeyID:     os.Getenv("LOOTMAN_ARCHIVE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("LOOTMAN_ARCHIVE_SECRET_ACCESS_KEY"),
		Region:          strings.TrimSpace(os.Getenv("LOOTMAN_ARCHIVE_REGION")),
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("LOOTMAN_ARCHIVE_PREFIX"))
	if prefix == "" {
		prefix = "lootman/trace"
	}
	if logger != nil {
		logger.Printf("trace archive enabled: prefix=%s session=%s", prefix, sessionID)
	}
	return objstore.NewArchiver(client, objstore.ArchiverOptions{
		Prefix:    prefix,
		SessionID: sessionID,
		Workers:   envInt("LOOTMAN_ARCHIVE_WORKERS", 1),
		Logger:    logger,
	}), nil
}

func registerArchiveStats(reg prometheus.Registerer, a *objstore.Archiver) error {
	if reg == nil || a == nil {
		return nil
	}
	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lootman_trace_archive_queue_depth",
			Help: "Trace segments waiting for upload.",
		}, func() float64 { return float64(a.Stats().QueueDepth) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_trace_archive_uploaded_total",
			Help: "Trace segments uploaded.",
		}, func() float64 { return float64(a.Stats().UploadSuccessTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_trace_archive_failed_total",
			Help: "Trace segments that failed every upload attempt.",
		}, func() float64 { return float64(a.Stats().UploadFailTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_trace_archive_dropped_total",
			Help: "Trace segments dropped because the queue was full.",
		}, func() float64 { return float64(a.Stats().DroppedTotal) }),
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
