package temporal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Errors reported by the temporal package.
var (
	// ErrSortSpecMismatch means the sort column and direction lists have
	// different lengths.
	ErrSortSpecMismatch = errors.New("sort columns and directions must have equal length")

	// ErrIterationCap means the reducer hit its iteration cap before
	// reaching a fixed point.
	ErrIterationCap = errors.New("overlap removal did not converge within iteration cap")

	// ErrNoMatches means the linker found no enclosing interval for any
	// event at all, which almost always indicates misaligned person IDs
	// between the two inputs.
	ErrNoMatches = errors.New("no events matched any reference interval; check person_id alignment")
)

// singleDay is the duration at or under which two stacked intervals are
// treated as distinct same-day visits rather than a containment pair.
const singleDay = 24 * time.Hour

// DefaultMaxIterations caps the reducer's remove-and-rescan loop.
const DefaultMaxIterations = 1000

// CapPolicy selects what the reducer does when the iteration cap is hit
// before convergence.
type CapPolicy int

const (
	// CapWarn logs a warning and returns the partially reduced result.
	CapWarn CapPolicy = iota
	// CapFail returns ErrIterationCap instead.
	CapFail
)

// Reducer removes intervals that are fully contained inside another
// surviving interval of the same person. Partial overlaps always survive.
type Reducer struct {
	maxIterations int
	onCap         CapPolicy
	log           zerolog.Logger
}

// NewReducer creates a Reducer. maxIterations <= 0 selects the default cap.
func NewReducer(maxIterations int, onCap CapPolicy, log zerolog.Logger) *Reducer {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Reducer{
		maxIterations: maxIterations,
		onCap:         onCap,
		log:           log,
	}
}

// Reduce sorts the intervals by spec and repeatedly drops every row fully
// contained in its predecessor until no row is dropped or the iteration
// cap is reached. The input slice is not modified.
//
// Removing a contained row can expose a new containment against the row
// above it, so each pass rescans the whole remaining set. Sorting by
// person asc, start asc, end desc makes the adjacent-row check
// sufficient: within a person, a container always sorts directly above
// everything it contains.
func (r *Reducer) Reduce(intervals []Interval, spec SortSpec) ([]Interval, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !spec.hasCanonicalPrefix() {
		r.log.Warn().
			Interface("columns", spec.Columns).
			Msg("sort spec does not start with person_id asc, start_date asc, end_date desc; output may keep contained rows")
	}

	rows := make([]Interval, len(intervals))
	copy(rows, intervals)
	if len(rows) < 2 {
		return rows, nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return spec.compare(rows[i], rows[j]) < 0
	})

	for iter := 1; iter <= r.maxIterations; iter++ {
		contained := containedIndex(rows)
		if len(contained) == 0 {
			return rows, nil
		}
		r.log.Debug().
			Int("iteration", iter).
			Int("removed", len(contained)).
			Msg("dropping contained intervals")
		rows = dropIndexes(rows, contained)
	}

	if r.onCap == CapFail {
		return nil, fmt.Errorf("%w (%d iterations)", ErrIterationCap, r.maxIterations)
	}
	r.log.Warn().
		Int("iterations", r.maxIterations).
		Msg("overlap removal stopped at iteration cap; result may still contain overlaps")
	return rows, nil
}

// containedIndex returns the positions of every row fully contained in
// the row directly above it. A row is contained when it has the same
// person, starts no earlier and ends no later than its predecessor.
// When both rows span a single day or less they are kept as genuinely
// distinct same-day visits.
func containedIndex(rows []Interval) []int {
	var out []int
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if cur.PersonID != prev.PersonID {
			continue
		}
		if cur.Start.Before(prev.Start) || cur.End.After(prev.End) {
			continue
		}
		if cur.Duration() <= singleDay && prev.Duration() <= singleDay {
			continue
		}
		out = append(out, i)
	}
	return out
}

func dropIndexes(rows []Interval, drop []int) []Interval {
	next := 0
	out := rows[:0]
	for i, row := range rows {
		if next < len(drop) && drop[next] == i {
			next++
			continue
		}
		out = append(out, row)
	}
	return out
}
