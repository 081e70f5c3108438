package model

import "fmt"

type FormType uint8

const (
	TypeNone FormType = iota
	TypeActivator
	TypePotion
	TypeAmmo
	TypeArmor
	TypeBook
	TypeContainer
	TypeFlora
	TypeIngredient
	TypeKey
	TypeMisc
	TypeNPC
	TypeWeapon
	TypeComponent
	TypeGlobal
	TypeFormList
	TypeMod
	TypeConstructible
	TypeCell
	TypeKeyword

	TypeAny FormType = 0xFF
)

var typeNames = map[FormType]string{
	TypeNone:          "NONE",
	TypeActivator:     "ACTI",
	TypePotion:        "ALCH",
	TypeAmmo:          "AMMO",
	TypeArmor:         "ARMO",
	TypeBook:          "BOOK",
	TypeContainer:     "CONT",
	TypeFlora:         "FLOR",
	TypeIngredient:    "INGR",
	TypeKey:           "KEYM",
	TypeMisc:          "MISC",
	TypeNPC:           "NPC_",
	TypeWeapon:        "WEAP",
	TypeComponent:     "CMPO",
	TypeGlobal:        "GLOB",
	TypeFormList:      "FLST",
	TypeMod:           "OMOD",
	TypeConstructible: "COBJ",
	TypeCell:          "CELL",
	TypeKeyword:       "KYWD",
	TypeAny:           "*",
}

var typeByName = func() map[string]FormType {
	m := make(map[string]FormType, len(typeNames))
	for t, n := range typeNames {
		m[n] = t
	}
	return m
}()

func (t FormType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("FormType(%d)", uint8(t))
}

func ParseFormType(s string) (FormType, error) {
	t, ok := typeByName[s]
	if !ok {
		return TypeNone, fmt.Errorf("unknown form type %q", s)
	}
	return t, nil
}

func (t FormType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *FormType) UnmarshalText(b []byte) error {
	v, err := ParseFormType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Gear reports whether t can carry attachment mods.
func (t FormType) Gear() bool { return t == TypeWeapon || t == TypeArmor }

// DefaultLootableTypes is what the inventory wildcard expands to.
func DefaultLootableTypes() []FormType {
	return []FormType{TypePotion, TypeAmmo, TypeArmor, TypeBook, TypeIngredient, TypeKey, TypeMisc, TypeWeapon}
}

// DefaultCacheTriggerTypes lists the base types whose load events mark a cell as worth scanning.
func DefaultCacheTriggerTypes() []FormType {
	return []FormType{
		TypeActivator, TypePotion, TypeAmmo, TypeArmor, TypeBook, TypeContainer,
		TypeFlora, TypeIngredient, TypeKey, TypeMisc, TypeNPC, TypeWeapon,
	}
}

type TypeSet map[FormType]struct{}

func NewTypeSet(types ...FormType) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s TypeSet) Has(t FormType) bool {
	_, ok := s[t]
	return ok
}
