package affix

import (
	"testing"

	"lootman.ai/internal/sim/model"
)

type formMap map[model.FormID]*model.Form

func (m formMap) LookupForm(id model.FormID) (*model.Form, bool) {
	f, ok := m[id]
	return f, ok
}

var (
	legendary = &model.Form{ID: 0x500, Type: model.TypeMod, Mod: &model.ModData{Flags: DefaultLegendaryFlags}}
	scope     = &model.Form{ID: 0x501, Type: model.TypeMod, Mod: &model.ModData{Flags: 3}}
	notAMod   = &model.Form{ID: 0x502, Type: model.TypeMisc}
	pistol    = &model.Form{ID: 0x100, Type: model.TypeWeapon}
	helmet    = &model.Form{ID: 0x101, Type: model.TypeArmor}
	stimpak   = &model.Form{ID: 0x102, Type: model.TypePotion}

	forms = formMap{0x500: legendary, 0x501: scope, 0x502: notAMod}
)

func mods(ids ...model.FormID) *model.ExtraData {
	return &model.ExtraData{Instance: &model.ObjectInstance{Mods: ids}}
}

func TestResolveAttachments(t *testing.T) {
	if got := ResolveAttachments(forms, nil); len(got) != 0 {
		t.Fatalf("nil extra should give no mods")
	}
	if got := ResolveAttachments(forms, &model.ExtraData{}); len(got) != 0 {
		t.Fatalf("extra without instance should give no mods")
	}
	got := ResolveAttachments(forms, mods(0x501, 0x502, 0x999, 0x500))
	if len(got) != 2 || got[0] != scope || got[1] != legendary {
		t.Fatalf("unexpected mods %v", got)
	}
}

func TestIsAffixed(t *testing.T) {
	r := &model.Ref{ID: 0x900, Base: pistol, Extra: mods(0x501, 0x500)}
	if !IsAffixed(forms, model.RefHandle(r), DefaultLegendaryFlags) {
		t.Fatalf("expected legendary pistol")
	}
	r.Extra = mods(0x501)
	if IsAffixed(forms, model.RefHandle(r), DefaultLegendaryFlags) {
		t.Fatalf("pistol with only a scope is not legendary")
	}
	r.Extra = nil
	if IsAffixed(forms, model.RefHandle(r), DefaultLegendaryFlags) {
		t.Fatalf("unattached pistol is not legendary")
	}
	chem := &model.Ref{ID: 0x901, Base: stimpak, Extra: mods(0x500)}
	if IsAffixed(forms, model.RefHandle(chem), DefaultLegendaryFlags) {
		t.Fatalf("only weapons and armor can be legendary")
	}
	hiddenGun := &model.Form{ID: 0x103, Type: model.TypeWeapon, Flags: model.FormFlagNonPlayable}
	if IsAffixed(forms, model.RefHandle(&model.Ref{ID: 0x902, Base: hiddenGun, Extra: mods(0x500)}), DefaultLegendaryFlags) {
		t.Fatalf("non-playable forms are never legendary")
	}

	owner := &model.Ref{ID: 0x14, Inventory: model.NewInventory(model.Item{Form: helmet, Stacks: []model.Stack{{Count: 1}, {Count: 1, Extra: mods(0x500)}}})}
	if !IsAffixed(forms, model.InventoryHandle(owner, helmet, 1), DefaultLegendaryFlags) {
		t.Fatalf("expected legendary helmet stack")
	}
	if IsAffixed(forms, model.InventoryHandle(owner, helmet, 0), DefaultLegendaryFlags) {
		t.Fatalf("plain helmet stack is not legendary")
	}
}

func TestOwnerHasAffixedInstance(t *testing.T) {
	inv := model.NewInventory(
		model.Item{Form: pistol, Stacks: []model.Stack{{Count: 1, Extra: mods(0x501)}}},
		model.Item{Form: helmet, Stacks: []model.Stack{{Count: 1}, {Count: 1, Extra: mods(0x501, 0x500)}}},
		model.Item{Form: nil},
	)
	owner := &model.Ref{ID: 0x14, Inventory: inv}
	if !OwnerHasAffixedInstance(forms, owner, helmet, DefaultLegendaryFlags) {
		t.Fatalf("expected legendary helmet in inventory")
	}
	if OwnerHasAffixedInstance(forms, owner, pistol, DefaultLegendaryFlags) {
		t.Fatalf("pistol is not legendary")
	}
	if OwnerHasAffixedInstance(forms, owner, stimpak, DefaultLegendaryFlags) {
		t.Fatalf("stimpak is never legendary")
	}
	if OwnerHasAffixedInstance(forms, &model.Ref{ID: 0x15}, helmet, DefaultLegendaryFlags) {
		t.Fatalf("owner without inventory")
	}

	// The read lock must be released on the early-return path.
	inv.Add(model.Item{Form: stimpak})
}
