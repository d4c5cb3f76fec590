package temporal

import (
	"errors"
	"fmt"
	"testing"
)

func batchFixture(persons int) ([]Event, []ReferenceInterval) {
	var events []Event
	var refs []ReferenceInterval
	for p := 1; p <= persons; p++ {
		pid := int64(p)
		events = append(events,
			Event{PersonID: pid, OccurredAt: date(2024, 1, 10), EventID: pid*10 + 1},
			Event{PersonID: pid, OccurredAt: date(2024, 6, 1), EventID: pid*10 + 2},
		)
		refs = append(refs, ReferenceInterval{
			PersonID: pid,
			Start:    date(2024, 1, 1),
			End:      date(2024, 1, 31),
			RefID:    pid * 100,
		})
	}
	return events, refs
}

func TestLinkInBatches_MatchesUnbatched(t *testing.T) {
	events, refs := batchFixture(7)
	l := newTestLinker()

	whole, err := l.Link(events, refs)
	if err != nil {
		t.Fatalf("unbatched: %v", err)
	}
	batched, err := l.LinkInBatches(events, refs, 2)
	if err != nil {
		t.Fatalf("batched: %v", err)
	}

	if len(whole) != len(batched) {
		t.Fatalf("row counts differ: %d vs %d", len(whole), len(batched))
	}
	for i := range whole {
		if whole[i].EventID != batched[i].EventID {
			t.Fatalf("row %d order differs: %d vs %d", i, whole[i].EventID, batched[i].EventID)
		}
		if whole[i].Matched() != batched[i].Matched() {
			t.Fatalf("row %d match differs", i)
		}
		if whole[i].Matched() && *whole[i].RefID != *batched[i].RefID {
			t.Fatalf("row %d reference differs: %d vs %d", i, *whole[i].RefID, *batched[i].RefID)
		}
	}
}

func TestLinkInBatches_ZeroMatchBatchIsNotFatal(t *testing.T) {
	// Person 1 (its own batch) has no reference intervals at all; the
	// zero-match check must span the whole run, not a single batch.
	events := []Event{
		{PersonID: 1, OccurredAt: date(2024, 1, 10), EventID: 1},
		{PersonID: 2, OccurredAt: date(2024, 1, 10), EventID: 2},
	}
	refs := []ReferenceInterval{
		{PersonID: 2, Start: date(2024, 1, 1), End: date(2024, 1, 31), RefID: 5},
	}

	out, err := newTestLinker().LinkInBatches(events, refs, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
}

func TestLinkInBatches_GlobalZeroMatchIsError(t *testing.T) {
	events := []Event{
		{PersonID: 1, OccurredAt: date(2024, 1, 10), EventID: 1},
		{PersonID: 2, OccurredAt: date(2024, 1, 10), EventID: 2},
	}
	refs := []ReferenceInterval{
		{PersonID: 9, Start: date(2024, 1, 1), End: date(2024, 1, 31), RefID: 5},
	}

	if _, err := newTestLinker().LinkInBatches(events, refs, 1); !errors.Is(err, ErrNoMatches) {
		t.Fatalf("expected ErrNoMatches, got %v", err)
	}
}

func TestDistinctPersons(t *testing.T) {
	events := []Event{
		{PersonID: 3}, {PersonID: 1}, {PersonID: 3}, {PersonID: 2},
	}
	got := distinctPersons(events)
	want := []int64{1, 2, 3}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
