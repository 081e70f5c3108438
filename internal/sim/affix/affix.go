// Package affix reads attachment mods off item instances and detects the
// legendary affix among them.
package affix

import "lootman.ai/internal/sim/model"

// DefaultLegendaryFlags is the mod flag value carried by legendary affixes.
const DefaultLegendaryFlags uint32 = 25

// ResolveAttachments returns the attachment mods recorded in extra, in order.
// Ids that do not resolve to an OMOD form are skipped.
func ResolveAttachments(forms model.Lookup, extra *model.ExtraData) []*model.Form {
	if forms == nil || extra == nil || extra.Instance == nil {
		return nil
	}
	out := make([]*model.Form, 0, len(extra.Instance.Mods))
	for _, id := range extra.Instance.Mods {
		f, ok := forms.LookupForm(id)
		if !ok || f == nil || f.Type != model.TypeMod || f.Mod == nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func HasAffix(mods []*model.Form, flags uint32) bool {
	for _, m := range mods {
		if m != nil && m.Mod != nil && m.Mod.Flags == flags {
			return true
		}
	}
	return false
}

// IsAffixed reports whether the item behind h is a playable weapon or armor
// carrying the affix.
func IsAffixed(forms model.Lookup, h model.Handle, flags uint32) bool {
	base, extra := h.Resolve()
	if !base.Playable() || !base.Type.Gear() {
		return false
	}
	return HasAffix(ResolveAttachments(forms, extra), flags)
}

// OwnerHasAffixedInstance scans owner's inventory for a stack of form that
// carries the affix.
func OwnerHasAffixedInstance(forms model.Lookup, owner *model.Ref, form *model.Form, flags uint32) bool {
	if owner == nil || !form.Playable() || !form.Type.Gear() {
		return false
	}
	inv := owner.Inventory
	if inv == nil {
		return false
	}
	inv.RLock()
	defer inv.RUnlock()

	for _, it := range inv.Items() {
		if it.Form == nil || it.Form.ID != form.ID {
			continue
		}
		found := false
		it.VisitStacks(func(s model.Stack) bool {
			found = HasAffix(ResolveAttachments(forms, s.Extra), flags)
			return !found
		})
		if found {
			return true
		}
	}
	return false
}
