package model

import "sync"

const StackFlagDropped uint32 = 1 << 5

type ObjectInstance struct {
	Mods []FormID
}

// ExtraData is the optional per-instance payload of a ref or an inventory stack.
type ExtraData struct {
	Instance *ObjectInstance
	Workshop bool
}

type Stack struct {
	Count    int32
	RefCount int32
	Flags    uint32
	Extra    *ExtraData
}

func (s Stack) Dropped() bool { return s.Flags&StackFlagDropped != 0 }

type Item struct {
	Form   *Form
	Stacks []Stack
}

// VisitStacks calls fn for each stack until fn returns false.
func (it Item) VisitStacks(fn func(Stack) bool) {
	for _, s := range it.Stacks {
		if !fn(s) {
			return
		}
	}
}

// Inventory is an ordered item list guarded by a reader/writer lock. Readers
// must hold RLock for as long as they touch Items.
type Inventory struct {
	mu    sync.RWMutex
	items []Item
}

func NewInventory(items ...Item) *Inventory {
	return &Inventory{items: items}
}

func (inv *Inventory) RLock()   { inv.mu.RLock() }
func (inv *Inventory) RUnlock() { inv.mu.RUnlock() }

// Items returns the backing slice; only valid while the read lock is held.
func (inv *Inventory) Items() []Item { return inv.items }

func (inv *Inventory) Add(it Item) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.items = append(inv.items, it)
}

// SetStackFlags replaces the flags of one stack. Returns false when out of range.
func (inv *Inventory) SetStackFlags(item, stack int, flags uint32) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if item < 0 || item >= len(inv.items) {
		return false
	}
	st := inv.items[item].Stacks
	if stack < 0 || stack >= len(st) {
		return false
	}
	st[stack].Flags = flags
	return true
}
