// Package proximity finds refs of one form type around an anchor ref.
package proximity

import (
	"math"
	"sort"

	"lootman.ai/internal/sim/cellcache"
	"lootman.ai/internal/sim/model"
)

type ScanPolicy uint8

const (
	// ScanLoadedCells scans the anchor's cell plus every cell in the cache.
	ScanLoadedCells ScanPolicy = iota
	// ScanPreVisCell scans the anchor's cell plus its pre-visualization companion.
	ScanPreVisCell
)

type ZeroRadius uint8

const (
	ZeroRadiusUnbounded ZeroRadius = iota
	ZeroRadiusRejectAll
)

type Options struct {
	Scan       ScanPolicy
	ZeroRadius ZeroRadius
}

type CellLookup interface {
	LookupCell(id model.FormID) (*model.Cell, bool)
}

type Engine struct {
	Cells CellLookup
	Cache *cellcache.Cache
	Opts  Options
}

type hit struct {
	ref      *model.Ref
	distance float64
}

// FindNearby returns the refs of type filter within radius of anchor.
//
// The result is ordered by distance DESCENDING: the farthest ref comes first
// and the nearest last. Callers iterate from the end of the slice so the
// nearest ref is handled first. Ties are broken by ascending ref id.
//
// The anchor itself and anything co-located with it (distance 0) is never
// returned, and no ref appears twice even when reachable from two cells. A
// negative or NaN radius matches nothing.
func (e *Engine) FindNearby(anchor *model.Ref, radius float64, filter model.FormType) []*model.Ref {
	if anchor == nil || anchor.ParentCell == 0 || e.Cells == nil {
		return nil
	}
	home, ok := e.Cells.LookupCell(anchor.ParentCell)
	if !ok || home == nil {
		return nil
	}
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	if radius == 0 && e.Opts.ZeroRadius == ZeroRadiusRejectAll {
		return nil
	}

	seen := map[model.FormID]struct{}{}
	var hits []hit
	scan := func(cell *model.Cell) {
		for _, ref := range cell.Refs {
			d, ok := e.accept(anchor, ref, filter)
			if !ok {
				continue
			}
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			seen[ref.ID] = struct{}{}
			if d == 0 {
				continue
			}
			if radius > 0 && d > radius {
				continue
			}
			hits = append(hits, hit{ref: ref, distance: d})
		}
	}

	scan(home)
	for _, id := range e.candidates(home) {
		if id == home.ID {
			continue
		}
		cell, ok := e.Cells.LookupCell(id)
		if !ok || !cell.Loaded3D() {
			continue
		}
		scan(cell)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance > hits[j].distance
		}
		return hits[i].ref.ID < hits[j].ref.ID
	})
	out := make([]*model.Ref, len(hits))
	for i, h := range hits {
		out[i] = h.ref
	}
	return out
}

func (e *Engine) candidates(home *model.Cell) []model.FormID {
	switch e.Opts.Scan {
	case ScanPreVisCell:
		if home.PreVisCell == 0 {
			return nil
		}
		return []model.FormID{home.PreVisCell}
	default:
		if e.Cache == nil {
			return nil
		}
		return e.Cache.Snapshot()
	}
}

func (e *Engine) accept(anchor, ref *model.Ref, filter model.FormType) (float64, bool) {
	if ref == nil || ref.DeletedOrDisabled() {
		return 0, false
	}
	base := ref.Base
	if base == nil {
		return 0, false
	}
	if filter != model.TypeAny && base.Type != filter {
		return 0, false
	}
	if !base.Playable() {
		return 0, false
	}
	if ref.Native() {
		return 0, false
	}
	return anchor.Pos.Distance(ref.Pos), true
}

func IDs(refs []*model.Ref) []model.FormID {
	out := make([]model.FormID, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}
