package registration

import "sort"

// ChangeType is the kind of a row-level change event.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent mirrors one row change. Record is the new row for insert/update
// and the removed row (at least its ID) for delete.
type ChangeEvent struct {
	Type   ChangeType   `json:"type"`
	Record Registration `json:"record"`
}

// Apply is the pure transition of a newest-first registration list.
//   - insert: prepend (inserts are always the newest row); a known ID is replaced in place
//   - update: replace by ID, unknown ID is a no-op
//   - delete: remove by ID
//
// items is never modified; the returned slice is fresh when changed is true.
func Apply(items []Registration, ev ChangeEvent) (next []Registration, changed bool) {
	id := ev.Record.ID
	if id == "" {
		return items, false
	}
	idx := indexOf(items, id)

	switch ev.Type {
	case ChangeInsert:
		if idx >= 0 {
			return replaceAt(items, idx, ev.Record), true
		}
		next = make([]Registration, 0, len(items)+1)
		next = append(next, ev.Record)
		next = append(next, items...)
		return next, true

	case ChangeUpdate:
		if idx < 0 {
			return items, false
		}
		return replaceAt(items, idx, ev.Record), true

	case ChangeDelete:
		if idx < 0 {
			return items, false
		}
		next = make([]Registration, 0, len(items)-1)
		next = append(next, items[:idx]...)
		next = append(next, items[idx+1:]...)
		return next, true
	}
	return items, false
}

// Feed is a process-local, newest-first view kept in sync by Apply.
// Not safe for concurrent use; one owner per feed.
type Feed struct {
	items []Registration
}

// NewFeed seeds a feed from a bulk load. The input is re-sorted by CreatedAt desc
// so stores that return ties in arbitrary order still produce a stable view.
func NewFeed(initial []Registration) *Feed {
	items := make([]Registration, len(initial))
	copy(items, initial)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return &Feed{items: items}
}

// Apply applies one change event and reports whether the view changed.
func (f *Feed) Apply(ev ChangeEvent) bool {
	next, changed := Apply(f.items, ev)
	if changed {
		f.items = next
	}
	return changed
}

// Items returns a copy of the current view.
func (f *Feed) Items() []Registration {
	out := make([]Registration, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) Len() int { return len(f.items) }

func indexOf(items []Registration, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func replaceAt(items []Registration, idx int, r Registration) []Registration {
	next := make([]Registration, len(items))
	copy(next, items)
	next[idx] = r
	return next
}
