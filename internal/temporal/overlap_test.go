package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestReducer(maxIterations int, onCap CapPolicy) *Reducer {
	return NewReducer(maxIterations, onCap, zerolog.Nop())
}

func TestReducer_RemovesContainedInterval(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 31), Concept: 10},
		{PersonID: 1, Start: date(2024, 1, 5), End: date(2024, 1, 5), Concept: 20},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if !out[0].Start.Equal(date(2024, 1, 1)) || !out[0].End.Equal(date(2024, 1, 31)) {
		t.Errorf("wrong survivor: %+v", out[0])
	}
}

func TestReducer_SingleDayExemption(t *testing.T) {
	// Two same-day visits on the same date are distinct contacts, not a
	// containment pair.
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 1), Concept: 10},
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 1), Concept: 20},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected both single-day rows to survive, got %d", len(out))
	}
}

func TestReducer_PartialOverlapSurvives(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 10)},
		{PersonID: 1, Start: date(2024, 1, 5), End: date(2024, 1, 20)},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("partial overlap must survive, got %d rows", len(out))
	}
}

func TestReducer_DifferentPersonsNeverInteract(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 31)},
		{PersonID: 2, Start: date(2024, 1, 5), End: date(2024, 1, 6)},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
}

func TestReducer_ExactDuplicateKeepsFirstAfterTieBreak(t *testing.T) {
	// Same (start, end) multi-day pair: the row sorting first on the
	// extra key survives.
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 10), Concept: 20},
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 10), Concept: 10},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec(ColConceptID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	if out[0].Concept != 10 {
		t.Errorf("expected concept 10 to survive the tie-break, got %d", out[0].Concept)
	}
}

func TestReducer_CascadingRemovalNeedsSecondPass(t *testing.T) {
	// C is not contained in B but is contained in A; it only becomes
	// adjacent to A once B is removed.
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 12, 31)},
		{PersonID: 1, Start: date(2024, 1, 2), End: date(2024, 2, 1)},
		{PersonID: 1, Start: date(2024, 1, 3), End: date(2024, 3, 1)},
	}

	out, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row after cascade, got %d", len(out))
	}
	if !out[0].End.Equal(date(2024, 12, 31)) {
		t.Errorf("wrong survivor: %+v", out[0])
	}
}

func TestReducer_IterationCap(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 12, 31)},
		{PersonID: 1, Start: date(2024, 1, 2), End: date(2024, 2, 1)},
		{PersonID: 1, Start: date(2024, 1, 3), End: date(2024, 3, 1)},
	}

	// CapWarn returns the partially reduced state.
	out, err := newTestReducer(1, CapWarn).Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 rows after a single pass, got %d", len(out))
	}

	// CapFail reports the non-convergence instead.
	if _, err := newTestReducer(1, CapFail).Reduce(in, CanonicalSortSpec()); !errors.Is(err, ErrIterationCap) {
		t.Errorf("expected ErrIterationCap, got %v", err)
	}
}

func TestReducer_Idempotent(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 31)},
		{PersonID: 1, Start: date(2024, 1, 5), End: date(2024, 1, 6)},
		{PersonID: 1, Start: date(2024, 2, 1), End: date(2024, 2, 15)},
		{PersonID: 2, Start: date(2024, 1, 1), End: date(2024, 1, 1)},
	}
	r := newTestReducer(0, CapWarn)

	once, err := r.Reduce(in, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := r.Reduce(once, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(once) != len(twice) {
		t.Fatalf("not idempotent: %d rows then %d rows", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("row %d changed on second pass: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestReducer_EmptyAndSingle(t *testing.T) {
	r := newTestReducer(0, CapWarn)

	out, err := r.Reduce(nil, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d rows", len(out))
	}

	single := []Interval{{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 2)}}
	out, err = r.Reduce(single, CanonicalSortSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != single[0] {
		t.Errorf("single row must pass through unchanged, got %+v", out)
	}
}

func TestReducer_SortSpecMismatch(t *testing.T) {
	spec := SortSpec{
		Columns:   []Column{ColPersonID, ColStartDate, ColEndDate},
		Ascending: []bool{true, true},
	}
	_, err := newTestReducer(0, CapWarn).Reduce(nil, spec)
	if !errors.Is(err, ErrSortSpecMismatch) {
		t.Fatalf("expected ErrSortSpecMismatch, got %v", err)
	}
}

func TestReducer_DoesNotMutateInput(t *testing.T) {
	in := []Interval{
		{PersonID: 1, Start: date(2024, 1, 5), End: date(2024, 1, 5)},
		{PersonID: 1, Start: date(2024, 1, 1), End: date(2024, 1, 31)},
	}
	orig := make([]Interval, len(in))
	copy(orig, in)

	if _, err := newTestReducer(0, CapWarn).Reduce(in, CanonicalSortSpec()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != orig[i] {
			t.Fatalf("input slice was modified at row %d", i)
		}
	}
}
