package domain

import (
	"sort"
	"time"
)

// Interval is a record effective from StartsOn until EndsOn; a nil end
// means open-ended.
type Interval interface {
	StartsOn() time.Time
	EndsOn() *time.Time
}

// Timeline partitions the records of one resource relative to a reference day.
type Timeline[T Interval] struct {
	Active  *T  `json:"active"`
	History []T `json:"history"`
	Future  []T `json:"future"`
}

// Classify places every record in exactly one of active, history or future:
//
//   - future when it starts after reference,
//   - history when it ended before reference,
//   - otherwise it is an active candidate. The first candidate in input
//     order is the active record; later candidates are demoted to history.
//
// Bounds are compared by calendar day. Callers choose the input order,
// normally newest start date first (see NewestFirst).
func Classify[T Interval](records []T, reference time.Time) Timeline[T] {
	ref := DayOf(reference)
	out := Timeline[T]{
		History: make([]T, 0),
		Future:  make([]T, 0),
	}
	for _, rec := range records {
		if DayOf(rec.StartsOn()).After(ref) {
			out.Future = append(out.Future, rec)
			continue
		}
		if end := rec.EndsOn(); end != nil && DayOf(*end).Before(ref) {
			out.History = append(out.History, rec)
			continue
		}
		if out.Active == nil {
			active := rec
			out.Active = &active
			continue
		}
		out.History = append(out.History, rec)
	}
	return out
}

// NewestFirst returns a copy of records sorted by start date, latest first.
// Ties keep their input order.
func NewestFirst[T Interval](records []T) []T {
	sorted := make([]T, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartsOn().After(sorted[j].StartsOn())
	})
	return sorted
}

// KeySummary is the read model of a sharing operation's key associations.
type KeySummary struct {
	Active  *SharingOperationKey  `json:"active"`
	Pending *SharingOperationKey  `json:"pending"`
	History []SharingOperationKey `json:"history"`
}

// SummarizeKeys sorts keys newest first; the first APPROVED row is the
// active key, the first open PENDING row is awaiting approval and every
// other row is history. An open APPROVED row outranks closed ones so a key
// approved with an older proposal date still reads as active. A closed
// PENDING row can no longer be approved and always goes to history.
func SummarizeKeys(keys []SharingOperationKey) KeySummary {
	out := KeySummary{History: make([]SharingOperationKey, 0)}
	sorted := NewestFirst(keys)

	active := -1
	for i, k := range sorted {
		if k.Status != KeyApproved {
			continue
		}
		if active < 0 {
			active = i
		}
		if k.Open() {
			active = i
			break
		}
	}

	for i, k := range sorted {
		switch {
		case i == active:
			row := k
			out.Active = &row
		case k.Status == KeyPending && k.Open() && out.Pending == nil:
			pending := k
			out.Pending = &pending
		default:
			out.History = append(out.History, k)
		}
	}
	return out
}
