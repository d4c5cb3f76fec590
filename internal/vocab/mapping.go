package vocab

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Mapping is one row's vocabulary state as it moves through the mapper:
// a raw source value with its declared vocabulary, progressively enriched
// with the source concept and the standard concept it maps to. A zero
// concept ID means "not mapped".
type Mapping struct {
	SourceValue     string
	Vocabulary      string
	SourceConceptID int64
	ConceptID       int64
}

// Fallback names an alternative vocabulary to retry still-unmapped
// values against, in order.
type Fallback struct {
	Vocabulary string
	MatchOn    MatchOn
}

// UnmappedValue is one distinct source value that resolved to no
// standard concept, with its row count.
type UnmappedValue struct {
	SourceValue string
	Vocabulary  string
	Rows        int
}

// Mapper resolves source values to standard OMOP concept IDs through a
// ConceptStore.
type Mapper struct {
	store ConceptStore
	log   zerolog.Logger
}

// NewMapper creates a Mapper.
func NewMapper(store ConceptStore, log zerolog.Logger) *Mapper {
	return &Mapper{store: store, log: log}
}

// Map resolves every row in place: source value → source concept ID
// (within the row's own vocabulary, matched on the column targets names
// for it) → standard concept ID via 'Maps to'. Rows still unmapped
// afterwards are retried against each fallback vocabulary in order.
// Unresolved rows end with concept ID 0, the OMOP "no matching concept".
func (m *Mapper) Map(ctx context.Context, rows []Mapping, targets map[string]MatchOn, fallbacks []Fallback) error {
	for i := range rows {
		matchOn, ok := targets[rows[i].Vocabulary]
		if !ok {
			continue
		}
		if err := m.mapRow(ctx, &rows[i], rows[i].Vocabulary, matchOn); err != nil {
			return err
		}
	}

	for _, fb := range fallbacks {
		remaining := 0
		for i := range rows {
			if rows[i].ConceptID != 0 {
				continue
			}
			if err := m.mapRow(ctx, &rows[i], fb.Vocabulary, fb.MatchOn); err != nil {
				return err
			}
			if rows[i].ConceptID == 0 {
				remaining++
			}
		}
		m.log.Debug().
			Str("vocabulary", fb.Vocabulary).
			Int("still_unmapped", remaining).
			Msg("fallback mapping pass")
		if remaining == 0 {
			break
		}
	}
	return nil
}

// mapRow attempts one vocabulary for one row, overwriting the row's
// vocabulary on success so the provenance of the mapping is kept.
func (m *Mapper) mapRow(ctx context.Context, row *Mapping, vocabulary string, matchOn MatchOn) error {
	var (
		id    int64
		found bool
		err   error
	)
	switch matchOn {
	case MatchConceptName:
		id, found, err = m.store.LookupByName(ctx, vocabulary, row.SourceValue)
	case MatchConceptCode:
		id, found, err = m.store.LookupByCode(ctx, vocabulary, row.SourceValue)
	default:
		return fmt.Errorf("unknown match target %q", matchOn)
	}
	if err != nil {
		return fmt.Errorf("lookup %q in %s: %w", row.SourceValue, vocabulary, err)
	}
	if !found {
		return nil
	}

	row.SourceConceptID = id
	row.Vocabulary = vocabulary

	std, ok, err := m.store.MapsTo(ctx, id)
	if err != nil {
		return fmt.Errorf("maps-to %d: %w", id, err)
	}
	if ok {
		row.ConceptID = std
	}
	return nil
}

// Unmapped reports the distinct source values that ended with concept
// ID 0, sorted by value for stable output.
func Unmapped(rows []Mapping) []UnmappedValue {
	type key struct {
		value, vocabulary string
	}
	counts := map[key]int{}
	for _, row := range rows {
		if row.ConceptID != 0 {
			continue
		}
		counts[key{row.SourceValue, row.Vocabulary}]++
	}

	out := make([]UnmappedValue, 0, len(counts))
	for k, n := range counts {
		out = append(out, UnmappedValue{SourceValue: k.value, Vocabulary: k.vocabulary, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceValue != out[j].SourceValue {
			return out[i].SourceValue < out[j].SourceValue
		}
		return out[i].Vocabulary < out[j].Vocabulary
	})
	return out
}
