package world

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"lootman.ai/internal/persistence/snapshot"
	"lootman.ai/internal/sim/catalogs"
	"lootman.ai/internal/sim/model"
)

// WorkshopKeywordEditorID names the keyword whose linked ref marks an object
// as belonging to a settlement workshop.
const WorkshopKeywordEditorID = "WorkshopItem"

// World is the in-memory world index: cells, placed refs and their
// inventories. Cells are replaced wholesale when their load state changes, so
// a *model.Cell handed out earlier is never mutated.
type World struct {
	cats   *catalogs.Catalogs
	logger *log.Logger

	mu    sync.RWMutex
	cells map[model.FormID]*model.Cell
	refs  map[model.FormID]*model.Ref

	// pubMu serializes load-state changes with their event delivery, so
	// subscribers see events in the order the state changed. It also guards subs.
	pubMu sync.Mutex
	subs  []func(model.ObjectLoadedEvent)
}

// Load reads a world fixture (JSON, or zstd-compressed JSON for .zst paths),
// validates it and indexes it against cats.
func Load(path string, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	raw, err := snapshot.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	if err := catalogs.Validate("world", raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	snap, err := snapshot.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(snap, cats, logger)
}

func New(snap snapshot.WorldV1, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags)
	}
	w := &World{
		cats:   cats,
		logger: logger,
		cells:  make(map[model.FormID]*model.Cell, len(snap.Cells)),
		refs:   map[model.FormID]*model.Ref{},
	}
	for _, c := range snap.Cells {
		if _, dup := w.cells[c.ID]; dup {
			return nil, fmt.Errorf("world: duplicate cell %s", c.ID)
		}
		cell := &model.Cell{ID: c.ID, PreVisCell: c.PreVis}
		if c.Interior {
			cell.Flags |= model.CellFlagInterior
		}
		if c.Loaded {
			cell.Flags |= model.CellFlagLoaded3D
		}
		for _, rv := range c.Refs {
			if _, dup := w.refs[rv.ID]; dup {
				return nil, fmt.Errorf("world: duplicate ref %s", rv.ID)
			}
			r := w.buildRef(c.ID, rv)
			w.refs[r.ID] = r
			cell.Refs = append(cell.Refs, r)
		}
		w.cells[cell.ID] = cell
	}
	return w, nil
}

func instanceExtra(mods []model.FormID, workshop bool) *model.ExtraData {
	if len(mods) == 0 && !workshop {
		return nil
	}
	ex := &model.ExtraData{Workshop: workshop}
	if len(mods) > 0 {
		ex.Instance = &model.ObjectInstance{Mods: append([]model.FormID(nil), mods...)}
	}
	return ex
}

func (w *World) buildRef(cell model.FormID, rv snapshot.RefV1) *model.Ref {
	r := &model.Ref{
		ID:         rv.ID,
		Pos:        model.Vec3{X: rv.Pos[0], Y: rv.Pos[1], Z: rv.Pos[2]},
		Flags:      rv.Flags,
		ParentCell: cell,
		Extra:      instanceExtra(rv.Mods, rv.Workshop),
	}
	if base, ok := w.cats.LookupForm(rv.Base); ok {
		r.Base = base
	} else {
		w.logger.Printf("ref %s: unknown base form %s", rv.ID, rv.Base)
	}
	if len(rv.Linked) > 0 {
		r.LinkedRefs = make(map[model.FormID]model.FormID, len(rv.Linked))
		for kw, target := range rv.Linked {
			r.LinkedRefs[kw] = target
		}
	}
	if len(rv.Inventory) > 0 {
		inv := model.NewInventory()
		for _, iv := range rv.Inventory {
			f, ok := w.cats.LookupForm(iv.Form)
			if !ok {
				w.logger.Printf("ref %s: unknown inventory form %s", rv.ID, iv.Form)
				continue
			}
			it := model.Item{Form: f}
			for _, sv := range iv.Stacks {
				it.Stacks = append(it.Stacks, model.Stack{
					Count:    sv.Count,
					RefCount: sv.RefCount,
					Flags:    sv.Flags,
					Extra:    instanceExtra(sv.Mods, false),
				})
			}
			inv.Add(it)
		}
		r.Inventory = inv
	}
	return r
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

func (w *World) LookupForm(id model.FormID) (*model.Form, bool) { return w.cats.LookupForm(id) }

func (w *World) Recipes() []model.Recipe { return w.cats.Recipes() }

func (w *World) LookupRef(id model.FormID) (*model.Ref, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.refs[id]
	return r, ok
}

func (w *World) LookupCell(id model.FormID) (*model.Cell, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.cells[id]
	return c, ok
}

// CellIDs returns every cell id, ascending.
func (w *World) CellIDs() []model.FormID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.FormID, 0, len(w.cells))
	for id := range w.cells {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Subscribe registers fn for object-loaded events. Events are delivered
// synchronously on the goroutine that changed the load state; fn must not
// call back into SetCellLoaded, Subscribe, Replay or Attach.
func (w *World) Subscribe(fn func(model.ObjectLoadedEvent)) {
	if fn == nil {
		return
	}
	w.pubMu.Lock()
	w.subs = append(w.subs, fn)
	w.pubMu.Unlock()
}

// Attach replays the current loaded state to fn and subscribes it, with no
// load change slipping in between.
func (w *World) Attach(fn func(model.ObjectLoadedEvent)) {
	if fn == nil {
		return
	}
	w.pubMu.Lock()
	defer w.pubMu.Unlock()
	w.replayLocked(fn)
	w.subs = append(w.subs, fn)
}

// SetCellLoaded flips the cell's 3D-loaded flag and emits one event per ref.
// Setting the current state again is a no-op. Concurrent calls deliver their
// events in the order their state changes were applied.
func (w *World) SetCellLoaded(id model.FormID, loaded bool) error {
	w.pubMu.Lock()
	defer w.pubMu.Unlock()

	w.mu.Lock()
	old, ok := w.cells[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("world: unknown cell %s", id)
	}
	if old.Loaded3D() == loaded {
		w.mu.Unlock()
		return nil
	}
	next := *old
	if loaded {
		next.Flags |= model.CellFlagLoaded3D
	} else {
		next.Flags &^= model.CellFlagLoaded3D
	}
	w.cells[id] = &next
	refs := next.Refs
	w.mu.Unlock()

	for _, r := range refs {
		ev := model.ObjectLoadedEvent{RefID: r.ID, Loaded: loaded}
		for _, fn := range w.subs {
			fn(ev)
		}
	}
	return nil
}

// Replay emits a loaded event for every ref of every currently loaded cell,
// so a freshly attached subscriber can catch up.
func (w *World) Replay(fn func(model.ObjectLoadedEvent)) {
	w.pubMu.Lock()
	defer w.pubMu.Unlock()
	w.replayLocked(fn)
}

func (w *World) replayLocked(fn func(model.ObjectLoadedEvent)) {
	for _, id := range w.CellIDs() {
		c, ok := w.LookupCell(id)
		if !ok || !c.Loaded3D() {
			continue
		}
		for _, r := range c.Refs {
			fn(model.ObjectLoadedEvent{RefID: r.ID, Loaded: true})
		}
	}
}

// IsLinkedToWorkshop reports whether ref is linked, through the WorkshopItem
// keyword, to a ref that carries workshop extra data.
func (w *World) IsLinkedToWorkshop(ref *model.Ref) bool {
	if ref == nil || len(ref.LinkedRefs) == 0 {
		return false
	}
	kw, ok := w.cats.LookupEditorID(WorkshopKeywordEditorID)
	if !ok {
		return false
	}
	target, ok := ref.LinkedRefs[kw.ID]
	if !ok {
		return false
	}
	t, ok := w.LookupRef(target)
	return ok && t.Extra != nil && t.Extra.Workshop
}
