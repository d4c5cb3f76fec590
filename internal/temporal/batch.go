package temporal

import "sort"

// DefaultBatchSize is how many distinct persons a single linking join
// may cover. The per-person expansion join is held in memory, so the
// batch size bounds peak usage, not the result.
const DefaultBatchSize = 10000

// LinkInBatches partitions the distinct person IDs into fixed-size
// batches, restricts both inputs to each batch and links them, then
// concatenates the results. Batches share no state and a person belongs
// to exactly one batch, so the output rows are identical to a single
// Link call over the whole input.
//
// The global zero-match check spans all batches: only a run where no
// event in any batch matched returns ErrNoMatches.
func (l *Linker) LinkInBatches(events []Event, refs []ReferenceInterval, batchSize int) ([]LinkedEvent, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	persons := distinctPersons(events)
	if len(persons) <= batchSize {
		return l.Link(events, refs)
	}

	refsByPerson := make(map[int64][]ReferenceInterval, len(persons))
	for _, ref := range refs {
		refsByPerson[ref.PersonID] = append(refsByPerson[ref.PersonID], ref)
	}
	eventsByPerson := make(map[int64][]Event, len(persons))
	for _, ev := range events {
		eventsByPerson[ev.PersonID] = append(eventsByPerson[ev.PersonID], ev)
	}

	out := make([]LinkedEvent, 0, len(events))
	matched := 0
	for start := 0; start < len(persons); start += batchSize {
		end := min(start+batchSize, len(persons))

		var batchEvents []Event
		var batchRefs []ReferenceInterval
		for _, person := range persons[start:end] {
			batchEvents = append(batchEvents, eventsByPerson[person]...)
			batchRefs = append(batchRefs, refsByPerson[person]...)
		}

		linked, batchMatched := l.link(batchEvents, batchRefs)
		matched += batchMatched
		out = append(out, linked...)

		l.log.Debug().
			Int("persons", end-start).
			Int("events", len(batchEvents)).
			Int("done", end).
			Int("total", len(persons)).
			Msg("linked batch")
	}

	if matched == 0 && len(events) > 0 {
		return nil, ErrNoMatches
	}
	return out, nil
}

// distinctPersons returns the sorted distinct person IDs of the events.
// Sorting keeps batched output in the same global order as an unbatched
// Link call.
func distinctPersons(events []Event) []int64 {
	seen := make(map[int64]struct{}, len(events))
	var out []int64
	for _, ev := range events {
		if _, ok := seen[ev.PersonID]; ok {
			continue
		}
		seen[ev.PersonID] = struct{}{}
		out = append(out, ev.PersonID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
