// Package cellcache tracks which cells currently hold loaded, lootable objects.
//
// A Cache is session scoped: create it when the session starts, feed it the
// object load/unload stream, hand it to the proximity engine, and Reset it at
// teardown. All access goes through one mutex; readers receive copies.
package cellcache

import (
	"sort"
	"sync"

	"lootman.ai/internal/sim/model"
)

type Retention uint8

const (
	// RetainEvictOnUnload forgets a cell once every object that loaded in it has unloaded.
	RetainEvictOnUnload Retention = iota
	// RetainForever never forgets a cell for the lifetime of the session.
	RetainForever
)

type Options struct {
	Retention Retention
	Triggers  []model.FormType
}

type Cache struct {
	retention Retention
	triggers  model.TypeSet

	mu    sync.Mutex
	cells map[model.FormID]int
}

func New(opts Options) *Cache {
	triggers := opts.Triggers
	if len(triggers) == 0 {
		triggers = model.DefaultCacheTriggerTypes()
	}
	return &Cache{
		retention: opts.Retention,
		triggers:  model.NewTypeSet(triggers...),
		cells:     map[model.FormID]int{},
	}
}

// OnPartitionEvent records that an object of baseType in cell loaded or unloaded.
func (c *Cache) OnPartitionEvent(cell model.FormID, baseType model.FormType, loaded bool) {
	if cell == 0 || !c.triggers.Has(baseType) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if loaded {
		c.cells[cell]++
		return
	}
	if c.retention == RetainForever {
		return
	}
	n, ok := c.cells[cell]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.cells, cell)
		return
	}
	c.cells[cell] = n - 1
}

func (c *Cache) Contains(cell model.FormID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cells[cell]
	return ok
}

// Snapshot returns the cached cell ids in ascending order.
func (c *Cache) Snapshot() []model.FormID {
	c.mu.Lock()
	out := make([]model.FormID, 0, len(c.cells))
	for id := range c.cells {
		out = append(out, id)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells = map[model.FormID]int{}
}
