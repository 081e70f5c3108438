package cellcache

import "lootman.ai/internal/sim/model"

type RefLookup interface {
	LookupRef(id model.FormID) (*model.Ref, bool)
}

// Listener feeds a Cache from the object-loaded event stream.
type Listener struct {
	Refs  RefLookup
	Cache *Cache
}

func (l Listener) Handle(ev model.ObjectLoadedEvent) {
	if l.Refs == nil || l.Cache == nil {
		return
	}
	ref, ok := l.Refs.LookupRef(ev.RefID)
	if !ok || ref == nil || ref.Base == nil || ref.ParentCell == 0 {
		return
	}
	l.Cache.OnPartitionEvent(ref.ParentCell, ref.Base.Type, ev.Loaded)
}
