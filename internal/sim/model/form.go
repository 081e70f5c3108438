package model

import (
	"fmt"
	"strconv"
)

// FormID identifies every form, reference and cell. It travels as an
// eight digit hex string.
type FormID uint32

func (id FormID) String() string { return fmt.Sprintf("%08X", uint32(id)) }

func (id FormID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *FormID) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 32)
	if err != nil {
		return fmt.Errorf("form id %q: %w", b, err)
	}
	*id = FormID(v)
	return nil
}

// IsEngineReserved reports whether id lives in the runtime-created 0xFF range.
func IsEngineReserved(id FormID) bool { return id>>24 == 0xFF }

const (
	FormFlagNonPlayable uint32 = 1 << 2
)

// Form is an immutable item template. Exactly one payload matches Type
// (Misc for MISC, Component for CMPO, Global for GLOB, List for FLST, Mod for OMOD).
type Form struct {
	ID       FormID
	Type     FormType
	Flags    uint32
	Name     string
	EditorID string
	Keywords []FormID

	Misc      *MiscData
	Component *ComponentData
	Global    *GlobalData
	List      *ListData
	Mod       *ModData
}

type MiscComponent struct {
	Component FormID
	Count     uint32
}

type MiscData struct {
	Components []MiscComponent
}

type ComponentData struct {
	ScrapItem   FormID
	ScrapScalar FormID
}

type GlobalData struct {
	Value float64
}

type ListData struct {
	Forms []FormID
}

type ModData struct {
	Flags uint32
}

func (f *Form) Playable() bool {
	return f != nil && f.Flags&FormFlagNonPlayable == 0
}

// IsJunk reports a MISC form that breaks down into further components.
func (f *Form) IsJunk() bool {
	return f != nil && f.Type == TypeMisc && f.Misc != nil && len(f.Misc.Components) > 0
}

// Contains reports whether a FLST form lists id.
func (f *Form) Contains(id FormID) bool {
	if f == nil || f.List == nil {
		return false
	}
	for _, m := range f.List.Forms {
		if m == id {
			return true
		}
	}
	return false
}

// Lookup resolves forms by id.
type Lookup interface {
	LookupForm(id FormID) (*Form, bool)
}
