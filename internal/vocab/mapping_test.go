package vocab

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func testStore() *MemoryStore {
	concepts := []Concept{
		{ID: 1001, Code: "I10", Name: "Essential hypertension", VocabularyID: "ICD10CM", DomainID: "Condition"},
		{ID: 1002, Code: "E11", Name: "Type 2 diabetes", VocabularyID: "ICD10CM", DomainID: "Condition"},
		{ID: 2001, Code: "HTA", Name: "hipertension arterial", VocabularyID: "BPS", DomainID: "Condition"},
	}
	mapsTo := map[int64]int64{
		1001: 320128,
		2001: 320128,
	}
	return NewMemoryStore(concepts, mapsTo)
}

func TestMapper_MapsThroughOwnVocabulary(t *testing.T) {
	rows := []Mapping{
		{SourceValue: "I10", Vocabulary: "ICD10CM"},
		{SourceValue: "hipertension arterial", Vocabulary: "BPS"},
	}
	targets := map[string]MatchOn{
		"ICD10CM": MatchConceptCode,
		"BPS":     MatchConceptName,
	}

	m := NewMapper(testStore(), zerolog.Nop())
	if err := m.Map(context.Background(), rows, targets, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rows[0].SourceConceptID != 1001 || rows[0].ConceptID != 320128 {
		t.Errorf("row 0: %+v", rows[0])
	}
	if rows[1].SourceConceptID != 2001 || rows[1].ConceptID != 320128 {
		t.Errorf("row 1: %+v", rows[1])
	}
}

func TestMapper_NoMapsToLeavesConceptZero(t *testing.T) {
	// E11 resolves to a source concept but has no 'Maps to' row.
	rows := []Mapping{{SourceValue: "E11", Vocabulary: "ICD10CM"}}
	targets := map[string]MatchOn{"ICD10CM": MatchConceptCode}

	m := NewMapper(testStore(), zerolog.Nop())
	if err := m.Map(context.Background(), rows, targets, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].SourceConceptID != 1002 {
		t.Errorf("expected source concept 1002, got %d", rows[0].SourceConceptID)
	}
	if rows[0].ConceptID != 0 {
		t.Errorf("expected concept 0, got %d", rows[0].ConceptID)
	}
}

func TestMapper_FallbackVocabulary(t *testing.T) {
	// The value is not a BPS name, but it is an ICD10CM code.
	rows := []Mapping{{SourceValue: "I10", Vocabulary: "BPS"}}
	targets := map[string]MatchOn{"BPS": MatchConceptName}
	fallbacks := []Fallback{{Vocabulary: "ICD10CM", MatchOn: MatchConceptCode}}

	m := NewMapper(testStore(), zerolog.Nop())
	if err := m.Map(context.Background(), rows, targets, fallbacks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].ConceptID != 320128 {
		t.Errorf("expected fallback to resolve concept 320128, got %d", rows[0].ConceptID)
	}
	if rows[0].Vocabulary != "ICD10CM" {
		t.Errorf("expected vocabulary rewritten to ICD10CM, got %s", rows[0].Vocabulary)
	}
}

func TestUnmapped(t *testing.T) {
	rows := []Mapping{
		{SourceValue: "ZZZ", Vocabulary: "ICD10CM"},
		{SourceValue: "ZZZ", Vocabulary: "ICD10CM"},
		{SourceValue: "I10", Vocabulary: "ICD10CM", ConceptID: 320128},
		{SourceValue: "AAA", Vocabulary: "BPS"},
	}

	got := Unmapped(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 unmapped values, got %d: %+v", len(got), got)
	}
	if got[0].SourceValue != "AAA" || got[0].Rows != 1 {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1].SourceValue != "ZZZ" || got[1].Rows != 2 {
		t.Errorf("unexpected second entry: %+v", got[1])
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Médico de Familia", "medico de familia"},
		{"HIPERTENSIÓN", "hipertension"},
		{"año", "ano"},
		{"plain ascii", "plain ascii"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
