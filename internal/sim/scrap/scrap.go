// Package scrap computes what an item breaks down into.
package scrap

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"lootman.ai/internal/sim/affix"
	"lootman.ai/internal/sim/model"
)

var (
	ErrRecipeCycle = errors.New("scrap: recipe cycle")
	ErrRecipeDepth = errors.New("scrap: recipe nesting too deep")
)

const DefaultMaxDepth = 16

// Catalog is the read-only recipe source.
type Catalog interface {
	model.Lookup
	Recipes() []model.Recipe
}

type Options struct {
	// AllMatches folds in every recipe producing a form instead of the first one.
	AllMatches bool
	MaxDepth   int
}

type Engine struct {
	Catalog Catalog
	Opts    Options
}

// Components maps a leaf component form to its quantity.
type Components map[model.FormID]uint32

// Sorted returns the components ordered by form id.
func (c Components) Sorted() []model.ComponentCount {
	out := make([]model.ComponentCount, 0, len(c))
	for id, n := range c {
		out = append(out, model.ComponentCount{Form: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Form < out[j].Form })
	return out
}

// Decompose returns the components recovered by scrapping the weapon or armor
// behind h, attachments included. Totals are halved with integer division and
// zero totals are kept. Anything that is not gear yields an empty map.
func (e *Engine) Decompose(h model.Handle) (Components, error) {
	out := Components{}
	base, extra := h.Resolve()
	if base == nil || !base.Type.Gear() || e.Catalog == nil {
		return out, nil
	}

	// Totals are widened while expanding and saturate instead of wrapping.
	totals := map[model.FormID]uint64{}

	sources := []*model.Form{base}
	sources = append(sources, affix.ResolveAttachments(e.Catalog, extra)...)

	for _, src := range sources {
		for _, r := range e.match(src.ID) {
			for _, c := range r.Components {
				if err := e.expand(totals, c.Form, uint64(c.Count), nil); err != nil {
					return Components{}, fmt.Errorf("form %s: %w", src.ID, err)
				}
			}
		}
	}

	for id, n := range totals {
		out[id] = clampU32(n / 2)
	}
	return out, nil
}

// expand adds qty of form to out, breaking junk down into its own components.
func (e *Engine) expand(out map[model.FormID]uint64, id model.FormID, qty uint64, path []model.FormID) error {
	f, ok := e.Catalog.LookupForm(id)
	if !ok || !f.IsJunk() {
		out[id] = addSat(out[id], qty)
		return nil
	}
	for _, p := range path {
		if p == id {
			return fmt.Errorf("%w at %s", ErrRecipeCycle, id)
		}
	}
	if len(path) >= e.maxDepth() {
		return fmt.Errorf("%w at %s", ErrRecipeDepth, id)
	}
	path = append(path, id)
	for _, sub := range f.Misc.Components {
		if err := e.expand(out, sub.Component, mulSat(qty, uint64(sub.Count)), path); err != nil {
			return err
		}
	}
	return nil
}

func addSat(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func mulSat(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

func clampU32(n uint64) uint32 {
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func (e *Engine) maxDepth() int {
	if e.Opts.MaxDepth > 0 {
		return e.Opts.MaxDepth
	}
	return DefaultMaxDepth
}

// match returns the recipes producing id, either directly or through a form list.
func (e *Engine) match(id model.FormID) []model.Recipe {
	var out []model.Recipe
	for _, r := range e.Catalog.Recipes() {
		if r.Created == 0 || len(r.Components) == 0 {
			continue
		}
		if !e.produces(r, id) {
			continue
		}
		out = append(out, r)
		if !e.Opts.AllMatches {
			break
		}
	}
	return out
}

func (e *Engine) produces(r model.Recipe, id model.FormID) bool {
	if r.Created == id {
		return true
	}
	created, ok := e.Catalog.LookupForm(r.Created)
	if !ok || created.Type != model.TypeFormList {
		return false
	}
	return created.Contains(id)
}

// ScrapMisc breaks a MISC form down one level. A MISC component is reported
// as is; any other component is replaced by its scrap item, scaled by its
// scrap scalar and rounded up. Entries are neither merged nor halved.
func (e *Engine) ScrapMisc(f *model.Form) []model.ComponentCount {
	if f == nil || f.Type != model.TypeMisc || f.Misc == nil || e.Catalog == nil {
		return nil
	}
	var out []model.ComponentCount
	for _, c := range f.Misc.Components {
		if cc, ok := e.collect(c.Component, c.Count); ok {
			out = append(out, cc)
		}
	}
	return out
}

// Scrap is the list form of scrapping: MISC forms go through ScrapMisc, gear
// reports every recipe component of its attachments and base form through
// the same scrap-item scaling.
func (e *Engine) Scrap(h model.Handle) []model.ComponentCount {
	base, extra := h.Resolve()
	if base == nil || e.Catalog == nil {
		return nil
	}
	if base.Type == model.TypeMisc {
		return e.ScrapMisc(base)
	}
	if !base.Type.Gear() {
		return nil
	}
	var out []model.ComponentCount
	add := func(rs []model.Recipe) {
		for _, r := range rs {
			for _, c := range r.Components {
				if cc, ok := e.collect(c.Form, c.Count); ok {
					out = append(out, cc)
				}
			}
		}
	}
	for _, m := range affix.ResolveAttachments(e.Catalog, extra) {
		add(e.match(m.ID))
	}
	all := e.Opts
	all.AllMatches = true
	add((&Engine{Catalog: e.Catalog, Opts: all}).match(base.ID))
	return out
}

func (e *Engine) collect(id model.FormID, count uint32) (model.ComponentCount, bool) {
	f, ok := e.Catalog.LookupForm(id)
	if !ok || f == nil {
		return model.ComponentCount{}, false
	}
	if f.Type == model.TypeMisc {
		return model.ComponentCount{Form: f.ID, Count: count}, true
	}
	if f.Component == nil || f.Component.ScrapItem == 0 || f.Component.ScrapScalar == 0 {
		return model.ComponentCount{}, false
	}
	g, ok := e.Catalog.LookupForm(f.Component.ScrapScalar)
	if !ok || g.Global == nil {
		return model.ComponentCount{}, false
	}
	n := math.Ceil(float64(count) * g.Global.Value)
	switch {
	case n < 0:
		n = 0
	case n > math.MaxUint32:
		n = math.MaxUint32
	}
	return model.ComponentCount{Form: f.Component.ScrapItem, Count: uint32(n)}, true
}
