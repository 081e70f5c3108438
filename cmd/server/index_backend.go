package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/persistence/indexdb"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	lootman.QueryRecorder
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir, sessionID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LOOTMAN_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "lootman.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("LOOTMAN_INDEX_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("LOOTMAN_INDEX_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("LOOTMAN_INDEX_BACKEND=remote but LOOTMAN_INDEX_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         token,
			SessionID:     sessionID,
			BatchSize:     envInt("LOOTMAN_INDEX_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("LOOTMAN_INDEX_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported LOOTMAN_INDEX_BACKEND: %s", backend)
	}
}

// registerIndexStats exposes the index queue counters next to the OTel
// instruments in reg.
func registerIndexStats(reg prometheus.Registerer, idx runtimeIndex) error {
	if reg == nil || idx == nil {
		return nil
	}
	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lootman_index_queue_depth",
			Help: "Pending index rows.",
		}, func() float64 { return float64(idx.Stats().QueueDepth) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lootman_index_queue_capacity",
			Help: "Index queue capacity.",
		}, func() float64 { return float64(idx.Stats().QueueCapacity) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_index_dropped_total",
			Help: "Index rows dropped because the queue was full.",
		}, func() float64 { return float64(idx.Stats().QueueDroppedTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_index_written_total",
			Help: "Index rows written.",
		}, func() float64 { return float64(idx.Stats().WrittenTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "lootman_index_flush_fail_total",
			Help: "Failed index flushes.",
		}, func() float64 { return float64(idx.Stats().FlushFailTotal) }),
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
