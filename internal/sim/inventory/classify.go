// Package inventory selects forms out of a ref's inventory by form type.
package inventory

import (
	"lootman.ai/internal/sim/affix"
	"lootman.ai/internal/sim/model"
)

// Query describes which inventory forms to keep.
//
// Include, when non-empty, must contain the form's type; model.TypeAny in
// Include stands for every type in Lootable. Exclude always wins.
type Query struct {
	Include  []model.FormType
	Exclude  []model.FormType
	Lootable []model.FormType
}

type matcher struct {
	include model.TypeSet
	exclude model.TypeSet
}

func (q Query) compile() matcher {
	m := matcher{exclude: model.NewTypeSet(q.Exclude...)}
	if len(q.Include) == 0 {
		return m
	}
	lootable := q.Lootable
	if lootable == nil {
		lootable = model.DefaultLootableTypes()
	}
	m.include = model.TypeSet{}
	for _, t := range q.Include {
		if t == model.TypeAny {
			for _, l := range lootable {
				m.include[l] = struct{}{}
			}
			continue
		}
		m.include[t] = struct{}{}
	}
	return m
}

func (m matcher) match(f *model.Form) bool {
	if !f.Playable() {
		return false
	}
	if m.exclude.Has(f.Type) {
		return false
	}
	if m.include != nil && !m.include.Has(f.Type) {
		return false
	}
	return true
}

// Classify returns the forms in owner's inventory matching q, in inventory order.
// Weapons with a dropped stack are left out.
func Classify(owner *model.Ref, q Query) []*model.Form {
	m := q.compile()
	var out []*model.Form
	scan(owner, func(it model.Item) {
		if !m.match(it.Form) {
			return
		}
		if it.Form.Type == model.TypeWeapon && droppedWeapon(it) {
			return
		}
		out = append(out, it.Form)
	})
	return out
}

// Junk returns the MISC forms in owner's inventory that scrap into components.
func Junk(owner *model.Ref) []*model.Form {
	var out []*model.Form
	scan(owner, func(it model.Item) {
		if it.Form.Playable() && it.Form.IsJunk() {
			out = append(out, it.Form)
		}
	})
	return out
}

// Legendary works like Classify but keeps weapons and armor only when one of
// their stacks carries the affix.
func Legendary(forms model.Lookup, owner *model.Ref, q Query, flags uint32) []*model.Form {
	m := q.compile()
	var out []*model.Form
	scan(owner, func(it model.Item) {
		if !m.match(it.Form) {
			return
		}
		if !it.Form.Type.Gear() {
			out = append(out, it.Form)
			return
		}
		hit := false
		it.VisitStacks(func(s model.Stack) bool {
			hit = affix.HasAffix(affix.ResolveAttachments(forms, s.Extra), flags)
			return !hit
		})
		if hit {
			out = append(out, it.Form)
		}
	})
	return out
}

// FilterForms keeps the playable forms whose type is in include. An empty
// include keeps every playable form.
func FilterForms(forms []*model.Form, include []model.FormType) []*model.Form {
	m := Query{Include: include}.compile()
	var out []*model.Form
	for _, f := range forms {
		if m.match(f) {
			out = append(out, f)
		}
	}
	return out
}

func FilterRefs(refs []*model.Ref, include []model.FormType) []*model.Ref {
	m := Query{Include: include}.compile()
	var out []*model.Ref
	for _, r := range refs {
		if r != nil && m.match(r.Base) {
			out = append(out, r)
		}
	}
	return out
}

func droppedWeapon(it model.Item) bool {
	dropped := false
	it.VisitStacks(func(s model.Stack) bool {
		dropped = s.Dropped()
		return !dropped
	})
	return dropped
}

// scan walks owner's inventory under its read lock, skipping empty entries.
func scan(owner *model.Ref, fn func(model.Item)) {
	if owner == nil || owner.Inventory == nil {
		return
	}
	inv := owner.Inventory
	inv.RLock()
	defer inv.RUnlock()
	for _, it := range inv.Items() {
		if it.Form == nil {
			continue
		}
		fn(it)
	}
}
