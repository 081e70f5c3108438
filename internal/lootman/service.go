// Package lootman is the query surface over the world index: proximity
// search, inventory classification, affix checks and scrap previews.
//
// Every operation is total. Unknown ids, empty inventories and malformed
// recipe graphs all produce an empty result; the latter is logged.
package lootman

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"lootman.ai/internal/observe"
	"lootman.ai/internal/sim/cellcache"
	"lootman.ai/internal/sim/model"
	"lootman.ai/internal/sim/proximity"
	"lootman.ai/internal/sim/scrap"
	"lootman.ai/internal/sim/tuning"
	"lootman.ai/internal/sim/world"
)

type Config struct {
	Tuning  tuning.Tuning
	Logger  *log.Logger
	Metrics *observe.Metrics
	Trace   TraceSink
	Index   QueryRecorder
}

type Service struct {
	world  *world.World
	tuning tuning.Tuning
	logger *log.Logger

	metrics *observe.Metrics
	gauge   metric.Registration
	trace   TraceSink
	index   QueryRecorder

	cache     *cellcache.Cache
	proximity *proximity.Engine
	scrap     *scrap.Engine
	query     queryDefaults
}

type queryDefaults struct {
	lootable []model.FormType
	affix    uint32
}

// New wires a service to w. The partition cache is seeded from the cells that
// are already loaded and then follows w's object-loaded events.
func New(w *world.World, cfg Config) *Service {
	t := cfg.Tuning
	if t.Settings == nil {
		t = tuning.Defaults()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[lootman] ", log.LstdFlags|log.Lmicroseconds)
	}

	s := &Service{
		world:   w,
		tuning:  t,
		logger:  logger,
		metrics: cfg.Metrics,
		trace:   cfg.Trace,
		index:   cfg.Index,
		cache:   cellcache.New(cacheOptions(t)),
		query:   queryDefaults{lootable: t.LootableTypes, affix: t.AffixFlagValue},
	}
	s.proximity = &proximity.Engine{Cells: w, Cache: s.cache, Opts: proximityOptions(t)}
	s.scrap = &scrap.Engine{Catalog: w, Opts: scrap.Options{AllMatches: t.ScrapAllRecipes, MaxDepth: t.ScrapMaxDepth}}

	listener := cellcache.Listener{Refs: w, Cache: s.cache}
	w.Attach(listener.Handle)

	if s.metrics != nil {
		reg, err := s.metrics.WatchCachedCells(s.cache.Len)
		if err != nil {
			logger.Printf("metrics: cached cell gauge: %v", err)
		}
		s.gauge = reg
	}
	return s
}

func cacheOptions(t tuning.Tuning) cellcache.Options {
	o := cellcache.Options{Triggers: t.CacheTriggerTypes}
	if t.CellRetention == tuning.RetentionKeep {
		o.Retention = cellcache.RetainForever
	}
	return o
}

func proximityOptions(t tuning.Tuning) proximity.Options {
	var o proximity.Options
	if t.CellScan == tuning.CellScanPreVis {
		o.Scan = proximity.ScanPreVisCell
	}
	if t.RadiusZero == tuning.RadiusZeroReject {
		o.ZeroRadius = proximity.ZeroRadiusRejectAll
	}
	return o
}

func (s *Service) World() *world.World     { return s.world }
func (s *Service) Tuning() tuning.Tuning   { return s.tuning }
func (s *Service) Cache() *cellcache.Cache { return s.cache }

// Close ends the session: the partition cache is cleared and the metrics
// callback is dropped. The service must not be used afterwards.
func (s *Service) Close() {
	s.cache.Reset()
	if s.gauge != nil {
		if err := s.gauge.Unregister(); err != nil {
			s.logger.Printf("metrics: unregister: %v", err)
		}
		s.gauge = nil
	}
}

func (s *Service) begin(op string) (*TraceEntry, time.Time) {
	return &TraceEntry{TraceID: uuid.NewString(), TimeMS: nowMS(), Op: op}, time.Now()
}

func (s *Service) finish(ctx context.Context, e *TraceEntry, start time.Time) {
	elapsed := time.Since(start)
	e.ElapsedUS = elapsed.Microseconds()
	e.Status = statusFor(e)
	s.metrics.RecordQuery(ctx, e.Op, e.Status, e.Count(), elapsed)
	if s.trace != nil {
		if err := s.trace.WriteTrace(*e); err != nil {
			s.logger.Printf("trace %s: %v", e.TraceID, err)
		}
	}
	if s.index != nil {
		s.index.RecordQuery(*e)
	}
}

func (s *Service) scrapFailed(ctx context.Context, e *TraceEntry, err error) {
	kind := "other"
	switch {
	case errors.Is(err, scrap.ErrRecipeCycle):
		kind = "cycle"
	case errors.Is(err, scrap.ErrRecipeDepth):
		kind = "depth"
	}
	s.metrics.RecordScrapError(ctx, kind)
	e.Error = err.Error()
	s.logger.Printf("decompose %s: %v", e.TraceID, err)
}
