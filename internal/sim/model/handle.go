package model

type HandleKind uint8

const (
	HandleNone HandleKind = iota
	HandleRef
	HandleInventory
)

// Handle addresses an item either as a placed ref or as one stack of an
// owner's inventory entry.
type Handle struct {
	Kind HandleKind

	Ref *Ref

	Owner *Ref
	Form  *Form
	Stack int
}

func RefHandle(r *Ref) Handle { return Handle{Kind: HandleRef, Ref: r} }

func InventoryHandle(owner *Ref, form *Form, stack int) Handle {
	return Handle{Kind: HandleInventory, Owner: owner, Form: form, Stack: stack}
}

// Resolve projects the handle to its base form and extra data. For an
// inventory handle the owner's read lock is taken while the stack is read.
func (h Handle) Resolve() (*Form, *ExtraData) {
	switch h.Kind {
	case HandleRef:
		if h.Ref == nil {
			return nil, nil
		}
		return h.Ref.Base, h.Ref.Extra
	case HandleInventory:
		if h.Owner == nil || h.Owner.Inventory == nil || h.Form == nil {
			return h.Form, nil
		}
		inv := h.Owner.Inventory
		inv.RLock()
		defer inv.RUnlock()
		for _, it := range inv.Items() {
			if it.Form == nil || it.Form.ID != h.Form.ID {
				continue
			}
			if h.Stack < 0 || h.Stack >= len(it.Stacks) {
				return h.Form, nil
			}
			return h.Form, it.Stacks[h.Stack].Extra
		}
		return h.Form, nil
	}
	return nil, nil
}
