package model

import "math"

const (
	RefFlagDeleted  uint32 = 1 << 5
	RefFlagDisabled uint32 = 1 << 11
	RefFlagNative   uint32 = 1 << 14
)

type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Distance(b Vec3) float64 {
	x := a.X - b.X
	y := a.Y - b.Y
	z := a.Z - b.Z
	return math.Sqrt(x*x + y*y + z*z)
}

// Ref is a placed object in the world.
type Ref struct {
	ID         FormID
	Base       *Form
	Pos        Vec3
	Flags      uint32
	ParentCell FormID

	Inventory  *Inventory
	Extra      *ExtraData
	LinkedRefs map[FormID]FormID
}

func (r *Ref) DeletedOrDisabled() bool {
	return r.Flags&(RefFlagDeleted|RefFlagDisabled) != 0
}

// Native refs are engine-created objects that scripts cannot bind to.
func (r *Ref) Native() bool {
	if r.Base == nil {
		return false
	}
	return IsEngineReserved(r.ID) && IsEngineReserved(r.Base.ID) && r.Flags&RefFlagNative != 0
}

const (
	CellFlagInterior uint32 = 1 << 0
	CellFlagLoaded3D uint32 = 1 << 4
)

type Cell struct {
	ID         FormID
	Flags      uint32
	PreVisCell FormID
	Refs       []*Ref
}

func (c *Cell) Loaded3D() bool { return c != nil && c.Flags&CellFlagLoaded3D != 0 }
func (c *Cell) Interior() bool { return c != nil && c.Flags&CellFlagInterior != 0 }

// ObjectLoadedEvent is emitted whenever a ref's 3D loads or unloads.
type ObjectLoadedEvent struct {
	RefID  FormID
	Loaded bool
}
