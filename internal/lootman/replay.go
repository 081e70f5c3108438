package lootman

import (
	"context"
	"fmt"

	"lootman.ai/internal/sim/model"
)

// Rerun repeats the call recorded in e against s. The fresh entry goes to
// s's sinks like any other call.
func (s *Service) Rerun(ctx context.Context, e TraceEntry) error {
	item := ItemRef{}
	if e.Item != nil {
		item = *e.Item
	}
	switch e.Op {
	case OpFindNearby:
		s.FindNearby(ctx, e.Subject, e.Radius, e.Filter)
	case OpFilterInventory:
		s.FilterInventory(ctx, e.Subject, e.Include, e.Exclude)
	case OpIsAffixed:
		s.IsAffixed(ctx, item)
	case OpOwnerHasAffixed:
		s.OwnerHasAffixedInstance(ctx, item.Owner, item.Form)
	case OpDecompose:
		s.Decompose(ctx, item)
	case OpScrap:
		s.Scrap(ctx, item)
	case OpScrapMisc:
		s.ScrapMisc(ctx, e.Subject)
	case OpJunk:
		s.Junk(ctx, e.Subject)
	case OpLegendary:
		s.Legendary(ctx, e.Subject, e.Include)
	case OpFormType:
		s.FormType(ctx, e.Subject)
	case OpIsLinkedToWorkshop:
		s.IsLinkedToWorkshop(ctx, e.Subject)
	case OpInjectionList:
		s.InjectionList(ctx, e.Key)
	case OpConfigInt:
		s.ConfigInt(ctx, e.Key)
	case OpFilterForms:
		s.FilterForms(ctx, e.Inputs, e.Include)
	case OpFilterRefs:
		s.FilterRefs(ctx, e.Inputs, e.Include)
	case OpListsContaining:
		s.ListsContaining(ctx, e.Subject)
	case OpSetCellLoaded:
		// A failed load change is part of the recorded outcome.
		_ = s.SetCellLoaded(ctx, e.Subject, e.Flag)
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	return nil
}

// Diff describes the first difference between the outcomes of two entries
// for the same call, or returns "" when they agree. Ids, timing and inputs
// are not compared.
func Diff(want, got TraceEntry) string {
	switch {
	case want.Op != got.Op:
		return fmt.Sprintf("op: want %s got %s", want.Op, got.Op)
	case want.Status != got.Status:
		return fmt.Sprintf("status: want %s got %s", want.Status, got.Status)
	case want.Flag != got.Flag:
		return fmt.Sprintf("flag: want %t got %t", want.Flag, got.Flag)
	case want.Op == OpFormType && want.Filter != got.Filter:
		return fmt.Sprintf("form type: want %s got %s", want.Filter, got.Filter)
	case want.Error != got.Error:
		return fmt.Sprintf("error: want %q got %q", want.Error, got.Error)
	}
	if !sameIDs(want.Result, got.Result) {
		return fmt.Sprintf("result: want %v got %v", want.Result, got.Result)
	}
	if !sameComponents(want.Components, got.Components) {
		return fmt.Sprintf("components: want %v got %v", want.Components, got.Components)
	}
	return ""
}

func sameIDs(a, b []model.FormID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameComponents(a, b []model.ComponentCount) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
