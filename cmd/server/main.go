package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/observe"
	persistlog "lootman.ai/internal/persistence/log"
	"lootman.ai/internal/persistence/objstore"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

var version = "dev"

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldPath  = flag.String("world", "", "path to world snapshot, .json or .json.zst (default: <configs>/world.json)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to lootman.yaml (default: <configs>/lootman.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the query index (catalogs + query rows)")
		noTrace    = flag.Bool("disable_trace", false, "disable trace files under <data>/trace")
		wsToken    = flag.String("ws_token", "", "shared token clients must present in HELLO (or set LOOTMAN_WS_TOKEN)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "lootman.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	wp := strings.TrimSpace(*worldPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "world.json")
	}
	w, err := world.Load(wp, cats, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("load world: %v", err)
	}
	logger.Printf("world loaded: %s cells=%d", filepath.Base(wp), len(w.CellIDs()))

	if err := prepareDataDir(*dataDir); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	sessionID := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "lootman", ServiceVersion: version})
	if err != nil {
		logger.Fatalf("init metrics: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = provider.Shutdown(ctx2)
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		logger.Fatalf("init metrics: %v", err)
	}

	// Optional: read-model index backend (does not affect query results).
	idx, err := openRuntimeIndex(*dataDir, sessionID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
		if err := registerIndexStats(provider.Registry, idx); err != nil {
			logger.Printf("index backend: register stats: %v", err)
		}
	}

	cfg := lootman.Config{
		Tuning:  tune,
		Logger:  log.New(os.Stdout, "[lootman] ", log.LstdFlags|log.Lmicroseconds),
		Metrics: metrics,
	}
	if idx != nil {
		cfg.Index = idx
	}
	var archiver *objstore.Archiver
	if !*noTrace {
		archiver, err = openTraceArchiver(sessionID, log.New(os.Stdout, "[archive] ", log.LstdFlags|log.Lmicroseconds))
		if err != nil {
			logger.Fatalf("trace archive: %v", err)
		}
		opts := persistlog.WriterOptions{}
		if archiver != nil {
			// Deferred first so it runs after the trace logger hands over its last segment.
			defer archiver.Close()
			if err := registerArchiveStats(provider.Registry, archiver); err != nil {
				logger.Printf("trace archive: register stats: %v", err)
			}
			opts.RotateLayout = "2006-01-02-15-04"
			opts.OnClose = archiver.Enqueue
		}
		traceLog := persistlog.NewTraceLoggerWithOptions(*dataDir, opts)
		defer traceLog.Close()
		cfg.Trace = traceLog
	}
	svc := lootman.New(w, cfg)
	defer svc.Close()

	token := strings.TrimSpace(*wsToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("LOOTMAN_WS_TOKEN"))
	}

	srv := &http.Server{
		Addr: *addr,
		Handler: newMux(serverDeps{
			svc:       svc,
			provider:  provider,
			metrics:   metrics,
			idx:       idx,
			archive:   archiver,
			sessionID: sessionID,
			wsToken:   token,
			admin:     envBool("LOOTMAN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
			logger:    logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s session=%s", *addr, sessionID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server stopped: %v", err)
	}
}

// prepareDataDir creates dir if needed and fails when it is not a directory.
func prepareDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	st, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
