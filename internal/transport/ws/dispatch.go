package ws

import (
	"context"
	"fmt"

	"lootman.ai/internal/lootman"
	"lootman.ai/internal/protocol"
	"lootman.ai/internal/sim/model"
)

// Dispatch runs one request against svc and builds its response. It never
// fails; request problems come back as an error code on the response.
func Dispatch(ctx context.Context, svc *lootman.Service, req protocol.ReqMsg) protocol.RespMsg {
	resp := protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
	}
	fail := func(code, format string, args ...any) protocol.RespMsg {
		resp.Code = code
		resp.Message = fmt.Sprintf(format, args...)
		return resp
	}
	a := req.Args
	item := lootman.ItemRef{Ref: a.Ref, Owner: a.Owner, Form: a.Form, Stack: a.Stack}

	switch req.Op {
	case protocol.OpFindNearby:
		if a.Anchor == 0 {
			return fail(protocol.ErrBadRequest, "missing anchor")
		}
		radius := svc.Tuning().LootingRange
		if a.Radius != nil {
			radius = *a.Radius
		}
		filter := a.Filter
		if filter == model.TypeNone {
			filter = model.TypeAny
		}
		anchor, _ := svc.World().LookupRef(a.Anchor)
		resp.Refs = protocol.RefObsOf(anchor, svc.FindNearby(ctx, a.Anchor, radius, filter))

	case protocol.OpFilterInventory:
		if a.Owner == 0 {
			return fail(protocol.ErrBadRequest, "missing owner")
		}
		resp.Forms = protocol.FormObsOf(svc.FilterInventory(ctx, a.Owner, a.Include, a.Exclude))

	case protocol.OpIsAffixed:
		if a.Ref == 0 && (a.Owner == 0 || a.Form == 0) {
			return fail(protocol.ErrBadRequest, "missing ref or owner+form")
		}
		resp.Flag = boolPtr(svc.IsAffixed(ctx, item))

	case protocol.OpOwnerHasAffixed:
		if a.Owner == 0 || a.Form == 0 {
			return fail(protocol.ErrBadRequest, "missing owner or form")
		}
		resp.Flag = boolPtr(svc.OwnerHasAffixedInstance(ctx, a.Owner, a.Form))

	case protocol.OpDecompose:
		if a.Ref == 0 && (a.Owner == 0 || a.Form == 0) {
			return fail(protocol.ErrBadRequest, "missing ref or owner+form")
		}
		resp.Components = svc.Decompose(ctx, item)

	case protocol.OpScrap:
		if a.Ref == 0 && (a.Owner == 0 || a.Form == 0) {
			return fail(protocol.ErrBadRequest, "missing ref or owner+form")
		}
		resp.Components = svc.Scrap(ctx, item)

	case protocol.OpScrapMisc:
		if a.Form == 0 {
			return fail(protocol.ErrBadRequest, "missing form")
		}
		resp.Components = svc.ScrapMisc(ctx, a.Form)

	case protocol.OpJunk:
		if a.Owner == 0 {
			return fail(protocol.ErrBadRequest, "missing owner")
		}
		resp.Forms = protocol.FormObsOf(svc.Junk(ctx, a.Owner))

	case protocol.OpLegendary:
		if a.Owner == 0 {
			return fail(protocol.ErrBadRequest, "missing owner")
		}
		resp.Forms = protocol.FormObsOf(svc.Legendary(ctx, a.Owner, a.Include))

	case protocol.OpFormType:
		if a.Form == 0 {
			return fail(protocol.ErrBadRequest, "missing form")
		}
		resp.FormType = svc.FormType(ctx, a.Form).String()

	case protocol.OpIsLinkedToWorkshop:
		if a.Ref == 0 {
			return fail(protocol.ErrBadRequest, "missing ref")
		}
		resp.Flag = boolPtr(svc.IsLinkedToWorkshop(ctx, a.Ref))

	case protocol.OpInjectionList:
		if a.Name == "" {
			return fail(protocol.ErrBadRequest, "missing name")
		}
		resp.Forms = protocol.FormObsOf(svc.InjectionList(ctx, a.Name))

	case protocol.OpConfigInt:
		if a.Key == "" {
			return fail(protocol.ErrBadRequest, "missing key")
		}
		v, ok := svc.ConfigInt(ctx, a.Key)
		if !ok {
			return fail(protocol.ErrNotFound, "unknown setting %q", a.Key)
		}
		resp.Value = &v

	case protocol.OpSetCellLoaded:
		if a.Cell == 0 {
			return fail(protocol.ErrBadRequest, "missing cell")
		}
		if err := svc.SetCellLoaded(ctx, a.Cell, a.Loaded); err != nil {
			return fail(protocol.ErrNotFound, "%v", err)
		}
		resp.Cells = svc.CachedCells()

	case protocol.OpFilterForms:
		if len(a.Forms) == 0 {
			return fail(protocol.ErrBadRequest, "missing forms")
		}
		resp.Forms = protocol.FormObsOf(svc.FilterForms(ctx, a.Forms, a.Include))

	case protocol.OpFilterRefs:
		if len(a.Refs) == 0 {
			return fail(protocol.ErrBadRequest, "missing refs")
		}
		resp.Refs = protocol.RefObsOf(nil, svc.FilterRefs(ctx, a.Refs, a.Include))

	case protocol.OpListsContaining:
		if a.Form == 0 {
			return fail(protocol.ErrBadRequest, "missing form")
		}
		resp.Forms = protocol.FormObsOf(svc.ListsContaining(ctx, a.Form))

	case protocol.OpCachedCells:
		resp.Cells = svc.CachedCells()

	default:
		return fail(protocol.ErrUnknownOp, "unknown op %q", req.Op)
	}
	resp.OK = true
	return resp
}

func boolPtr(b bool) *bool { return &b }
