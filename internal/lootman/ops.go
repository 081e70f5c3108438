package lootman

import (
	"context"
	"fmt"

	"lootman.ai/internal/sim/affix"
	"lootman.ai/internal/sim/inventory"
	"lootman.ai/internal/sim/model"
	"lootman.ai/internal/sim/proximity"
)

// ItemRef names an item either as a placed ref, or as one stack of a form in
// an owner's inventory. Ref wins when both are set.
type ItemRef struct {
	Ref   model.FormID `json:"ref,omitempty"`
	Owner model.FormID `json:"owner,omitempty"`
	Form  model.FormID `json:"form,omitempty"`
	Stack int          `json:"stack,omitempty"`
}

func (s *Service) handle(it ItemRef) model.Handle {
	if it.Ref != 0 {
		r, ok := s.world.LookupRef(it.Ref)
		if !ok {
			return model.Handle{}
		}
		return model.RefHandle(r)
	}
	if it.Owner == 0 || it.Form == 0 {
		return model.Handle{}
	}
	owner, ok := s.world.LookupRef(it.Owner)
	if !ok {
		return model.Handle{}
	}
	f, ok := s.world.LookupForm(it.Form)
	if !ok {
		return model.Handle{}
	}
	return model.InventoryHandle(owner, f, it.Stack)
}

func (s *Service) ref(id model.FormID) *model.Ref {
	r, _ := s.world.LookupRef(id)
	return r
}

func formIDs(forms []*model.Form) []model.FormID {
	out := make([]model.FormID, len(forms))
	for i, f := range forms {
		out[i] = f.ID
	}
	return out
}

// FindNearby returns refs of type filter around anchor, farthest first. A
// negative radius matches nothing.
func (s *Service) FindNearby(ctx context.Context, anchor model.FormID, radius float64, filter model.FormType) []*model.Ref {
	e, start := s.begin(OpFindNearby)
	e.Subject, e.Radius, e.Filter = anchor, radius, filter
	defer s.finish(ctx, e, start)

	if radius < 0 {
		return nil
	}
	refs := s.proximity.FindNearby(s.ref(anchor), radius, filter)
	e.Result = proximity.IDs(refs)
	return refs
}

func (s *Service) FilterInventory(ctx context.Context, owner model.FormID, include, exclude []model.FormType) []*model.Form {
	e, start := s.begin(OpFilterInventory)
	e.Subject, e.Include, e.Exclude = owner, include, exclude
	defer s.finish(ctx, e, start)

	forms := inventory.Classify(s.ref(owner), inventory.Query{
		Include:  include,
		Exclude:  exclude,
		Lootable: s.query.lootable,
	})
	e.Result = formIDs(forms)
	return forms
}

func (s *Service) IsAffixed(ctx context.Context, item ItemRef) bool {
	e, start := s.begin(OpIsAffixed)
	e.Item = &item
	defer s.finish(ctx, e, start)

	e.Flag = affix.IsAffixed(s.world, s.handle(item), s.query.affix)
	return e.Flag
}

func (s *Service) OwnerHasAffixedInstance(ctx context.Context, owner, form model.FormID) bool {
	e, start := s.begin(OpOwnerHasAffixed)
	e.Subject = owner
	e.Item = &ItemRef{Owner: owner, Form: form}
	defer s.finish(ctx, e, start)

	f, ok := s.world.LookupForm(form)
	if !ok {
		return false
	}
	e.Flag = affix.OwnerHasAffixedInstance(s.world, s.ref(owner), f, s.query.affix)
	return e.Flag
}

// Decompose previews what scrapping the item yields. A malformed recipe graph
// is logged and yields nothing.
func (s *Service) Decompose(ctx context.Context, item ItemRef) []model.ComponentCount {
	e, start := s.begin(OpDecompose)
	e.Item = &item
	defer s.finish(ctx, e, start)

	comps, err := s.scrap.Decompose(s.handle(item))
	if err != nil {
		s.scrapFailed(ctx, e, err)
		return nil
	}
	e.Components = comps.Sorted()
	return e.Components
}

// Scrap lists a recipe-level scrap result: junk yields its scrap items,
// gear yields the components of its recipes and attachments.
func (s *Service) Scrap(ctx context.Context, item ItemRef) []model.ComponentCount {
	e, start := s.begin(OpScrap)
	e.Item = &item
	defer s.finish(ctx, e, start)

	e.Components = s.scrap.Scrap(s.handle(item))
	return e.Components
}

func (s *Service) ScrapMisc(ctx context.Context, form model.FormID) []model.ComponentCount {
	e, start := s.begin(OpScrapMisc)
	e.Subject = form
	defer s.finish(ctx, e, start)

	f, ok := s.world.LookupForm(form)
	if !ok {
		return nil
	}
	e.Components = s.scrap.ScrapMisc(f)
	return e.Components
}

func (s *Service) Junk(ctx context.Context, owner model.FormID) []*model.Form {
	e, start := s.begin(OpJunk)
	e.Subject = owner
	defer s.finish(ctx, e, start)

	forms := inventory.Junk(s.ref(owner))
	e.Result = formIDs(forms)
	return forms
}

func (s *Service) Legendary(ctx context.Context, owner model.FormID, include []model.FormType) []*model.Form {
	e, start := s.begin(OpLegendary)
	e.Subject, e.Include = owner, include
	defer s.finish(ctx, e, start)

	forms := inventory.Legendary(s.world, s.ref(owner), inventory.Query{
		Include:  include,
		Lootable: s.query.lootable,
	}, s.query.affix)
	e.Result = formIDs(forms)
	return forms
}

// FormType reports the type of a form, or TypeNone when it is unknown.
func (s *Service) FormType(ctx context.Context, form model.FormID) model.FormType {
	e, start := s.begin(OpFormType)
	e.Subject = form
	defer s.finish(ctx, e, start)

	f, ok := s.world.LookupForm(form)
	if !ok {
		return model.TypeNone
	}
	e.Filter = f.Type
	e.Flag = true
	return f.Type
}

func (s *Service) IsLinkedToWorkshop(ctx context.Context, ref model.FormID) bool {
	e, start := s.begin(OpIsLinkedToWorkshop)
	e.Subject = ref
	defer s.finish(ctx, e, start)

	e.Flag = s.world.IsLinkedToWorkshop(s.ref(ref))
	return e.Flag
}

// InjectionList resolves a named injection list. Unresolvable entries are
// logged and skipped.
func (s *Service) InjectionList(ctx context.Context, name string) []*model.Form {
	e, start := s.begin(OpInjectionList)
	e.Key = name
	defer s.finish(ctx, e, start)

	forms, warnings := s.world.Catalogs().ResolveInjection(name)
	for _, w := range warnings {
		s.logger.Printf("injection %s: %s", name, w)
	}
	e.Result = formIDs(forms)
	return forms
}

// FilterForms keeps the playable forms among ids whose type is in include.
// Unknown ids are dropped.
func (s *Service) FilterForms(ctx context.Context, ids []model.FormID, include []model.FormType) []*model.Form {
	e, start := s.begin(OpFilterForms)
	e.Inputs, e.Include = ids, include
	defer s.finish(ctx, e, start)

	forms := make([]*model.Form, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.world.LookupForm(id); ok {
			forms = append(forms, f)
		}
	}
	forms = inventory.FilterForms(forms, include)
	e.Result = formIDs(forms)
	return forms
}

// FilterRefs is FilterForms for placed refs, matched on their base form.
func (s *Service) FilterRefs(ctx context.Context, ids []model.FormID, include []model.FormType) []*model.Ref {
	e, start := s.begin(OpFilterRefs)
	e.Inputs, e.Include = ids, include
	defer s.finish(ctx, e, start)

	refs := make([]*model.Ref, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.world.LookupRef(id); ok {
			refs = append(refs, r)
		}
	}
	refs = inventory.FilterRefs(refs, include)
	e.Result = proximity.IDs(refs)
	return refs
}

// ListsContaining returns the form lists that name form, ordered by id.
func (s *Service) ListsContaining(ctx context.Context, form model.FormID) []*model.Form {
	e, start := s.begin(OpListsContaining)
	e.Subject = form
	defer s.finish(ctx, e, start)

	lists := s.world.Catalogs().ListsContaining(form)
	e.Result = formIDs(lists)
	return lists
}

func (s *Service) ConfigInt(ctx context.Context, key string) (int, bool) {
	e, start := s.begin(OpConfigInt)
	e.Key = key
	defer s.finish(ctx, e, start)

	v, ok := s.tuning.ConfigInt(key)
	e.Flag = ok
	return v, ok
}

// SetCellLoaded forwards a cell load change from the host to the world; the
// partition cache follows through the world's event stream.
func (s *Service) SetCellLoaded(ctx context.Context, cell model.FormID, loaded bool) error {
	e, start := s.begin(OpSetCellLoaded)
	e.Subject = cell
	e.Flag = loaded
	defer s.finish(ctx, e, start)

	if err := s.world.SetCellLoaded(cell, loaded); err != nil {
		e.Error = err.Error()
		return fmt.Errorf("set cell loaded: %w", err)
	}
	return nil
}

// CachedCells lists the cells the partition cache currently holds, ascending.
func (s *Service) CachedCells() []model.FormID { return s.cache.Snapshot() }
