package lootman

import (
	"time"

	"lootman.ai/internal/sim/model"
)

// TraceEntry records one facade call: its inputs, its result and how long it took.
type TraceEntry struct {
	TraceID string `json:"trace_id"`
	TimeMS  int64  `json:"ts_ms"`
	Op      string `json:"op"`
	Status  string `json:"status"`

	Subject model.FormID     `json:"subject,omitempty"`
	Item    *ItemRef         `json:"item,omitempty"`
	Radius  float64          `json:"radius,omitempty"`
	Filter  model.FormType   `json:"filter,omitempty"`
	Include []model.FormType `json:"include,omitempty"`
	Exclude []model.FormType `json:"exclude,omitempty"`
	Key     string           `json:"key,omitempty"`
	// Inputs holds the candidate ids of the list filters.
	Inputs []model.FormID `json:"inputs,omitempty"`

	Result     []model.FormID         `json:"result,omitempty"`
	Components []model.ComponentCount `json:"components,omitempty"`
	Flag       bool                   `json:"flag,omitempty"`
	Error      string                 `json:"error,omitempty"`

	ElapsedUS int64 `json:"elapsed_us"`
}

// Count is the number of items the call returned (1 for a true predicate).
func (e TraceEntry) Count() int {
	switch {
	case len(e.Result) > 0:
		return len(e.Result)
	case len(e.Components) > 0:
		return len(e.Components)
	case e.Flag:
		return 1
	}
	return 0
}

// SubjectID is the entity the call was about: Subject, or else the item's
// ref or owner.
func (e TraceEntry) SubjectID() model.FormID {
	if e.Subject != 0 || e.Item == nil {
		return e.Subject
	}
	if e.Item.Ref != 0 {
		return e.Item.Ref
	}
	return e.Item.Owner
}

// TraceSink receives every trace entry. Implementations must be safe for
// concurrent use.
type TraceSink interface {
	WriteTrace(e TraceEntry) error
}

// QueryRecorder receives every trace entry for indexing. It must not block.
type QueryRecorder interface {
	RecordQuery(e TraceEntry)
}

// Operation names as they appear in trace entries.
const (
	OpFindNearby         = "find_nearby"
	OpFilterInventory    = "filter_inventory"
	OpIsAffixed          = "is_affixed"
	OpOwnerHasAffixed    = "owner_has_affixed"
	OpDecompose          = "decompose"
	OpScrap              = "scrap"
	OpScrapMisc          = "scrap_misc"
	OpJunk               = "junk"
	OpLegendary          = "legendary"
	OpFormType           = "form_type"
	OpIsLinkedToWorkshop = "is_linked_to_workshop"
	OpInjectionList      = "injection_list"
	OpConfigInt          = "config_int"
	OpSetCellLoaded      = "set_cell_loaded"
	OpFilterForms        = "filter_forms"
	OpFilterRefs         = "filter_refs"
	OpListsContaining    = "lists_containing"
)

const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

func statusFor(e *TraceEntry) string {
	if e.Error != "" {
		return StatusError
	}
	if e.Count() == 0 {
		return StatusEmpty
	}
	return StatusOK
}

func nowMS() int64 { return time.Now().UnixMilli() }
