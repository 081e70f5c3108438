package protocol

import "lootman.ai/internal/sim/model"

// Request ops.
const (
	OpFindNearby         = "FIND_NEARBY"
	OpFilterInventory    = "FILTER_INVENTORY"
	OpIsAffixed          = "IS_AFFIXED"
	OpOwnerHasAffixed    = "OWNER_HAS_AFFIXED"
	OpDecompose          = "DECOMPOSE"
	OpScrap              = "SCRAP"
	OpScrapMisc          = "SCRAP_MISC"
	OpJunk               = "JUNK"
	OpLegendary          = "LEGENDARY"
	OpFormType           = "FORM_TYPE"
	OpIsLinkedToWorkshop = "IS_LINKED_TO_WORKSHOP"
	OpInjectionList      = "INJECTION_LIST"
	OpConfigInt          = "CONFIG_INT"
	OpSetCellLoaded      = "SET_CELL_LOADED"
	OpCachedCells        = "CACHED_CELLS"
	OpFilterForms        = "FILTER_FORMS"
	OpFilterRefs         = "FILTER_REFS"
	OpListsContaining    = "LISTS_CONTAINING"
)

// REQ (client -> server). Only the args the op reads need to be set.
type ReqMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id"`
	Op              string  `json:"op"`
	Args            ReqArgs `json:"args"`
}

type ReqArgs struct {
	Anchor model.FormID `json:"anchor,omitempty"`
	// Radius defaults to the configured looting range when absent.
	Radius *float64       `json:"radius,omitempty"`
	Filter model.FormType `json:"filter,omitempty"`

	Owner model.FormID `json:"owner,omitempty"`
	Ref   model.FormID `json:"ref,omitempty"`
	Form  model.FormID `json:"form,omitempty"`
	Stack int          `json:"stack,omitempty"`

	Include []model.FormType `json:"include,omitempty"`
	Exclude []model.FormType `json:"exclude,omitempty"`

	Cell   model.FormID `json:"cell,omitempty"`
	Loaded bool         `json:"loaded,omitempty"`

	Name string `json:"name,omitempty"`
	Key  string `json:"key,omitempty"`

	// Candidates for FILTER_FORMS and FILTER_REFS.
	Forms []model.FormID `json:"forms,omitempty"`
	Refs  []model.FormID `json:"refs,omitempty"`
}

// RESP (server -> client). Exactly one result field is set for a
// successful request; Code and Message are set otherwise.
type RespMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`

	Refs       []RefObs               `json:"refs,omitempty"`
	Forms      []FormObs              `json:"forms,omitempty"`
	Components []model.ComponentCount `json:"components,omitempty"`
	Cells      []model.FormID         `json:"cells,omitempty"`
	Flag       *bool                  `json:"flag,omitempty"`
	Value      *int                   `json:"value,omitempty"`
	FormType   string                 `json:"form_type,omitempty"`
}

type RefObs struct {
	ID       model.FormID   `json:"id"`
	Base     model.FormID   `json:"base"`
	Type     model.FormType `json:"type"`
	Pos      [3]float64     `json:"pos"`
	Distance float64        `json:"distance"`
}

type FormObs struct {
	ID   model.FormID   `json:"id"`
	Type model.FormType `json:"type"`
	Name string         `json:"name,omitempty"`
}

func FormObsOf(forms []*model.Form) []FormObs {
	out := make([]FormObs, 0, len(forms))
	for _, f := range forms {
		out = append(out, FormObs{ID: f.ID, Type: f.Type, Name: f.Name})
	}
	return out
}

// RefObsOf keeps the order of refs and measures distance from anchor.
func RefObsOf(anchor *model.Ref, refs []*model.Ref) []RefObs {
	out := make([]RefObs, 0, len(refs))
	for _, r := range refs {
		o := RefObs{ID: r.ID, Pos: [3]float64{r.Pos.X, r.Pos.Y, r.Pos.Z}}
		if r.Base != nil {
			o.Base, o.Type = r.Base.ID, r.Base.Type
		}
		if anchor != nil {
			o.Distance = anchor.Pos.Distance(r.Pos)
		}
		out = append(out, o)
	}
	return out
}
