package model

import (
	"encoding/json"
	"testing"
)

func TestFormTypeText(t *testing.T) {
	var got []FormType
	if err := json.Unmarshal([]byte(`["WEAP","NPC_","*"]`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 || got[0] != TypeWeapon || got[1] != TypeNPC || got[2] != TypeAny {
		t.Fatalf("unexpected types: %v", got)
	}
	if _, err := ParseFormType("NOPE"); err == nil {
		t.Fatalf("expected unknown type error")
	}
	b, _ := json.Marshal(TypeArmor)
	if string(b) != `"ARMO"` {
		t.Fatalf("marshal: %s", b)
	}
}

func TestRefNative(t *testing.T) {
	base := &Form{ID: 0xFF000010, Type: TypeMisc}
	r := &Ref{ID: 0xFF000A00, Base: base, Flags: RefFlagNative}
	if !r.Native() {
		t.Fatalf("expected native ref")
	}
	r.Flags = 0
	if r.Native() {
		t.Fatalf("flag bit cleared, expected scriptable")
	}
	r.Flags = RefFlagNative
	r.Base = &Form{ID: 0x0001F00D, Type: TypeMisc}
	if r.Native() {
		t.Fatalf("plugin base form is never native")
	}
}

func TestHandleResolve(t *testing.T) {
	gun := &Form{ID: 0x100, Type: TypeWeapon}
	extra := &ExtraData{Instance: &ObjectInstance{Mods: []FormID{0x200}}}
	owner := &Ref{ID: 0x14, Inventory: NewInventory(Item{Form: gun, Stacks: []Stack{{Count: 1}, {Count: 1, Extra: extra}}})}

	f, x := InventoryHandle(owner, gun, 1).Resolve()
	if f != gun || x != extra {
		t.Fatalf("inventory handle resolved to %v %v", f, x)
	}
	f, x = InventoryHandle(owner, gun, 7).Resolve()
	if f != gun || x != nil {
		t.Fatalf("out of range stack should give nil extra")
	}
	r := &Ref{ID: 0x300, Base: gun, Extra: extra}
	f, x = RefHandle(r).Resolve()
	if f != gun || x != extra {
		t.Fatalf("ref handle resolved to %v %v", f, x)
	}
	if f, x = (Handle{}).Resolve(); f != nil || x != nil {
		t.Fatalf("empty handle should resolve to nothing")
	}
}

func TestFormIDText(t *testing.T) {
	var ids []FormID
	if err := json.Unmarshal([]byte(`["0001F66B","ff000a00"]`), &ids); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ids[0] != 0x1F66B || ids[1] != 0xFF000A00 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if !IsEngineReserved(ids[1]) || IsEngineReserved(ids[0]) {
		t.Fatalf("engine reserved range misdetected")
	}
	b, _ := json.Marshal(map[string]FormID{"id": 0xA})
	if string(b) != `{"id":"0000000A"}` {
		t.Fatalf("marshal: %s", b)
	}
}
