package temporal

import (
	"fmt"
	"time"
)

// Column names a sortable attribute of an Interval.
type Column string

// Columns understood by the interval sorter.
const (
	ColPersonID  Column = "person_id"
	ColStartDate Column = "start_date"
	ColEndDate   Column = "end_date"
	ColConceptID Column = "concept_id"
	ColProvider  Column = "provider_id"
)

// Interval is one per-person date range, typically a candidate visit.
type Interval struct {
	PersonID int64
	Start    time.Time
	End      time.Time
	Concept  int64
	Provider int64
}

// Duration returns the span of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// SortSpec is an ordered list of columns with a sort direction for each.
type SortSpec struct {
	Columns   []Column
	Ascending []bool
}

// CanonicalSortSpec returns the ordering the overlap reducer expects:
// person_id asc, start_date asc, end_date desc, plus any extra tie-break
// columns appended in ascending order.
func CanonicalSortSpec(extra ...Column) SortSpec {
	spec := SortSpec{
		Columns:   []Column{ColPersonID, ColStartDate, ColEndDate},
		Ascending: []bool{true, true, false},
	}
	for _, col := range extra {
		spec.Columns = append(spec.Columns, col)
		spec.Ascending = append(spec.Ascending, true)
	}
	return spec
}

// Validate checks that the spec is well formed.
func (s SortSpec) Validate() error {
	if len(s.Columns) != len(s.Ascending) {
		return fmt.Errorf("%w: %d columns, %d directions", ErrSortSpecMismatch, len(s.Columns), len(s.Ascending))
	}
	for _, col := range s.Columns {
		switch col {
		case ColPersonID, ColStartDate, ColEndDate, ColConceptID, ColProvider:
		default:
			return fmt.Errorf("unknown sort column %q", col)
		}
	}
	return nil
}

// hasCanonicalPrefix reports whether the first three sort keys are
// person_id asc, start_date asc, end_date desc. The adjacent-row
// containment check is only guaranteed correct under this prefix.
func (s SortSpec) hasCanonicalPrefix() bool {
	if len(s.Columns) < 3 {
		return false
	}
	return s.Columns[0] == ColPersonID && s.Ascending[0] &&
		s.Columns[1] == ColStartDate && s.Ascending[1] &&
		s.Columns[2] == ColEndDate && !s.Ascending[2]
}

// compare orders a against b under the spec. Returns -1, 0 or 1.
func (s SortSpec) compare(a, b Interval) int {
	for i, col := range s.Columns {
		var c int
		switch col {
		case ColPersonID:
			c = compareInt64(a.PersonID, b.PersonID)
		case ColStartDate:
			c = a.Start.Compare(b.Start)
		case ColEndDate:
			c = a.End.Compare(b.End)
		case ColConceptID:
			c = compareInt64(a.Concept, b.Concept)
		case ColProvider:
			c = compareInt64(a.Provider, b.Provider)
		}
		if c == 0 {
			continue
		}
		if !s.Ascending[i] {
			c = -c
		}
		return c
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Event is a per-person timestamped fact awaiting a visit foreign key.
type Event struct {
	PersonID   int64
	OccurredAt time.Time
	EventID    int64
}

// ReferenceInterval is one row of the authoritative interval set the
// linker matches events against, typically a VISIT_OCCURRENCE row.
type ReferenceInterval struct {
	PersonID int64
	Start    time.Time
	End      time.Time
	RefID    int64
}

// LinkedEvent is an input event plus the enclosing reference interval,
// when exactly one was found. The pointer fields are nil when no match
// exists for the event.
type LinkedEvent struct {
	Event
	RefID    *int64
	RefStart *time.Time
	RefEnd   *time.Time
}

// Matched reports whether the event was assigned a reference interval.
func (e LinkedEvent) Matched() bool {
	return e.RefID != nil
}
