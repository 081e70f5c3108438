package inventory

import (
	"testing"

	"lootman.ai/internal/sim/affix"
	"lootman.ai/internal/sim/model"
)

type formMap map[model.FormID]*model.Form

func (m formMap) LookupForm(id model.FormID) (*model.Form, bool) {
	f, ok := m[id]
	return f, ok
}

var (
	laser    = &model.Form{ID: 0x100, Type: model.TypeWeapon}
	pipe     = &model.Form{ID: 0x101, Type: model.TypeWeapon}
	vest     = &model.Form{ID: 0x102, Type: model.TypeArmor}
	stimpak  = &model.Form{ID: 0x103, Type: model.TypePotion}
	holotape = &model.Form{ID: 0x104, Type: model.TypeKey}
	fan      = &model.Form{ID: 0x105, Type: model.TypeMisc, Misc: &model.MiscData{Components: []model.MiscComponent{{Component: 0x900, Count: 2}}}}
	bobby    = &model.Form{ID: 0x106, Type: model.TypeMisc}
	token    = &model.Form{ID: 0x107, Type: model.TypeMisc, Flags: model.FormFlagNonPlayable}
	npcSkin  = &model.Form{ID: 0x108, Type: model.TypeNPC}

	mod = &model.Form{ID: 0x500, Type: model.TypeMod, Mod: &model.ModData{Flags: affix.DefaultLegendaryFlags}}
)

func ids(forms []*model.Form) []model.FormID {
	out := make([]model.FormID, len(forms))
	for i, f := range forms {
		out[i] = f.ID
	}
	return out
}

func equalIDs(t *testing.T, got []*model.Form, want ...model.FormID) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("got %v want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("got %v want %v", g, want)
		}
	}
}

func TestClassify_DroppedWeapon(t *testing.T) {
	inv := model.NewInventory(
		model.Item{Form: laser, Stacks: []model.Stack{{Count: 1, Flags: model.StackFlagDropped}}},
		model.Item{Form: pipe, Stacks: []model.Stack{{Count: 1}}},
	)
	owner := &model.Ref{ID: 0x14, Inventory: inv}
	equalIDs(t, Classify(owner, Query{Include: []model.FormType{model.TypeWeapon}}), 0x101)

	if !inv.SetStackFlags(0, 0, 0) {
		t.Fatalf("SetStackFlags failed")
	}
	equalIDs(t, Classify(owner, Query{Include: []model.FormType{model.TypeWeapon}}), 0x100, 0x101)
}

func TestClassify_DroppedAnyStack(t *testing.T) {
	inv := model.NewInventory(model.Item{Form: laser, Stacks: []model.Stack{{Count: 1}, {Count: 1, Flags: model.StackFlagDropped}, {Count: 1}}})
	if got := Classify(&model.Ref{ID: 0x14, Inventory: inv}, Query{}); len(got) != 0 {
		t.Fatalf("a weapon with a dropped stack should be skipped, got %v", ids(got))
	}
}

func TestClassify_WildcardAndOrder(t *testing.T) {
	inv := model.NewInventory(
		model.Item{Form: npcSkin},
		model.Item{Form: holotape},
		model.Item{Form: nil},
		model.Item{Form: stimpak},
		model.Item{Form: token},
		model.Item{Form: fan},
		model.Item{Form: vest},
	)
	owner := &model.Ref{ID: 0x14, Inventory: inv}

	equalIDs(t, Classify(owner, Query{Include: []model.FormType{model.TypeAny}}), 0x104, 0x103, 0x105, 0x102)

	noKeys := []model.FormType{model.TypePotion, model.TypeAmmo, model.TypeArmor, model.TypeBook, model.TypeIngredient, model.TypeMisc, model.TypeWeapon}
	equalIDs(t, Classify(owner, Query{Include: []model.FormType{model.TypeAny}, Lootable: noKeys}), 0x103, 0x105, 0x102)

	equalIDs(t, Classify(owner, Query{Include: []model.FormType{model.TypeNPC, model.TypeAny}, Exclude: []model.FormType{model.TypeMisc}}), 0x108, 0x104, 0x103, 0x102)

	equalIDs(t, Classify(owner, Query{}), 0x108, 0x104, 0x103, 0x105, 0x102)
}

func TestClassify_NoInventory(t *testing.T) {
	if got := Classify(&model.Ref{ID: 0x14}, Query{}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := Classify(nil, Query{}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestJunk(t *testing.T) {
	owner := &model.Ref{ID: 0x14, Inventory: model.NewInventory(model.Item{Form: bobby}, model.Item{Form: fan}, model.Item{Form: stimpak})}
	equalIDs(t, Junk(owner), 0x105)
}

func TestLegendary(t *testing.T) {
	forms := formMap{0x500: mod}
	legendaryExtra := &model.ExtraData{Instance: &model.ObjectInstance{Mods: []model.FormID{0x500}}}
	owner := &model.Ref{ID: 0x14, Inventory: model.NewInventory(
		model.Item{Form: laser, Stacks: []model.Stack{{Count: 1}}},
		model.Item{Form: vest, Stacks: []model.Stack{{Count: 1}, {Count: 1, Extra: legendaryExtra}}},
		model.Item{Form: stimpak, Stacks: []model.Stack{{Count: 3}}},
	)}
	equalIDs(t, Legendary(forms, owner, Query{}, affix.DefaultLegendaryFlags), 0x102, 0x103)
	equalIDs(t, Legendary(forms, owner, Query{Include: []model.FormType{model.TypeWeapon, model.TypeArmor}}, affix.DefaultLegendaryFlags), 0x102)
}

func TestFilterFormsAndRefs(t *testing.T) {
	equalIDs(t, FilterForms([]*model.Form{laser, nil, token, stimpak}, []model.FormType{model.TypeWeapon}), 0x100)
	equalIDs(t, FilterForms([]*model.Form{laser, nil, token, stimpak}, nil), 0x100, 0x103)

	refs := []*model.Ref{{ID: 0x1, Base: vest}, nil, {ID: 0x2}, {ID: 0x3, Base: fan}}
	got := FilterRefs(refs, []model.FormType{model.TypeMisc})
	if len(got) != 1 || got[0].ID != 0x3 {
		t.Fatalf("unexpected refs %v", got)
	}
}
