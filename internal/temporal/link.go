package temporal

import (
	"sort"

	"github.com/rs/zerolog"
)

// Linker assigns each event the identifier of the reference interval
// enclosing it, if exactly one exists for the event's person.
type Linker struct {
	log zerolog.Logger
}

// NewLinker creates a Linker.
func NewLinker(log zerolog.Logger) *Linker {
	return &Linker{log: log}
}

// Link produces one output row per input event, carrying the reference
// interval whose bounds enclose the event's timestamp (inclusive on both
// ends) for the same person, or nil fields when no interval matches.
//
// Reference intervals sharing an exact (person, start, end) triple are
// ambiguous and are dropped entirely from the candidate set rather than
// arbitrarily keeping one. When an event falls inside several surviving
// intervals (same-day visits), the earliest-starting interval wins.
//
// Returns ErrNoMatches when no event at all found an enclosing interval,
// since that almost always means the person IDs of the two inputs do not
// line up. An empty event set returns empty with no error.
func (l *Linker) Link(events []Event, refs []ReferenceInterval) ([]LinkedEvent, error) {
	out, matched := l.link(events, refs)
	if matched == 0 && len(events) > 0 {
		return nil, ErrNoMatches
	}
	return out, nil
}

// link performs the join and reports how many events matched, leaving
// the global zero-match policy to the callers (Link checks one call,
// LinkInBatches checks across all batches).
func (l *Linker) link(events []Event, refs []ReferenceInterval) ([]LinkedEvent, int) {
	sortedEvents := make([]Event, len(events))
	copy(sortedEvents, events)
	sort.SliceStable(sortedEvents, func(i, j int) bool {
		if sortedEvents[i].PersonID != sortedEvents[j].PersonID {
			return sortedEvents[i].PersonID < sortedEvents[j].PersonID
		}
		return sortedEvents[i].OccurredAt.Before(sortedEvents[j].OccurredAt)
	})

	candidates := dropAmbiguousRefs(refs)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].PersonID != candidates[j].PersonID {
			return candidates[i].PersonID < candidates[j].PersonID
		}
		if !candidates[i].Start.Equal(candidates[j].Start) {
			return candidates[i].Start.Before(candidates[j].Start)
		}
		return candidates[i].End.Before(candidates[j].End)
	})

	out := make([]LinkedEvent, 0, len(sortedEvents))
	matched := 0
	lo := 0
	for _, ev := range sortedEvents {
		// Advance to this person's reference intervals. Both sides are
		// sorted by person, so lo never moves backwards.
		for lo < len(candidates) && candidates[lo].PersonID < ev.PersonID {
			lo++
		}
		linked := LinkedEvent{Event: ev}
		for i := lo; i < len(candidates) && candidates[i].PersonID == ev.PersonID; i++ {
			ref := candidates[i]
			if ev.OccurredAt.Before(ref.Start) || ev.OccurredAt.After(ref.End) {
				continue
			}
			refID, start, end := ref.RefID, ref.Start, ref.End
			linked.RefID = &refID
			linked.RefStart = &start
			linked.RefEnd = &end
			matched++
			break
		}
		out = append(out, linked)
	}

	l.log.Debug().
		Int("events", len(sortedEvents)).
		Int("candidates", len(candidates)).
		Int("matched", matched).
		Msg("linked events to reference intervals")
	return out, matched
}

// dropAmbiguousRefs removes every reference interval whose exact
// (person, start, end) triple occurs more than once. Such groups cannot
// be resolved to a single reference ID.
func dropAmbiguousRefs(refs []ReferenceInterval) []ReferenceInterval {
	type key struct {
		person     int64
		start, end int64
	}
	counts := make(map[key]int, len(refs))
	for _, ref := range refs {
		counts[key{ref.PersonID, ref.Start.UnixMilli(), ref.End.UnixMilli()}]++
	}
	out := make([]ReferenceInterval, 0, len(refs))
	for _, ref := range refs {
		if counts[key{ref.PersonID, ref.Start.UnixMilli(), ref.End.UnixMilli()}] == 1 {
			out = append(out, ref)
		}
	}
	return out
}
