package vocab

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// MatchOn selects which CONCEPT column a vocabulary's source values are
// matched against.
type MatchOn string

// CONCEPT columns source values can be resolved through.
const (
	MatchConceptCode MatchOn = "concept_code"
	MatchConceptName MatchOn = "concept_name"
)

// Concept is one row of the OMOP CONCEPT table, reduced to the columns
// the mapper needs.
type Concept struct {
	ID           int64
	Code         string
	Name         string
	VocabularyID string
	DomainID     string
}

// ConceptStore resolves source codes and names to concept IDs and source
// concepts to standard ones. Concept IDs are opaque integers here; all
// vocabulary semantics live in the store's backing data.
type ConceptStore interface {
	// LookupByCode resolves a concept_code within one vocabulary.
	LookupByCode(ctx context.Context, vocabulary, code string) (int64, bool, error)
	// LookupByName resolves a concept_name within one vocabulary.
	LookupByName(ctx context.Context, vocabulary, name string) (int64, bool, error)
	// MapsTo resolves a source concept to its standard concept through
	// the 'Maps to' relationship.
	MapsTo(ctx context.Context, sourceConceptID int64) (int64, bool, error)
}

// MemoryStore is a ConceptStore backed by in-memory maps, loaded from
// Athena-style CONCEPT and CONCEPT_RELATIONSHIP exports. It serves
// file-only runs and tests.
type MemoryStore struct {
	byCode map[codeKey]int64
	byName map[codeKey]int64
	mapsTo map[int64]int64
}

type codeKey struct {
	vocabulary string
	value      string
}

// NewMemoryStore creates a store over the given concepts and 'Maps to'
// pairs (source concept id → standard concept id).
func NewMemoryStore(concepts []Concept, mapsTo map[int64]int64) *MemoryStore {
	s := &MemoryStore{
		byCode: make(map[codeKey]int64, len(concepts)),
		byName: make(map[codeKey]int64, len(concepts)),
		mapsTo: make(map[int64]int64, len(mapsTo)),
	}
	for _, c := range concepts {
		s.byCode[codeKey{c.VocabularyID, c.Code}] = c.ID
		s.byName[codeKey{c.VocabularyID, NormalizeText(c.Name)}] = c.ID
	}
	for from, to := range mapsTo {
		s.mapsTo[from] = to
	}
	return s
}

// LookupByCode implements ConceptStore.
func (s *MemoryStore) LookupByCode(_ context.Context, vocabulary, code string) (int64, bool, error) {
	id, ok := s.byCode[codeKey{vocabulary, code}]
	return id, ok, nil
}

// LookupByName implements ConceptStore. Names are matched after
// NormalizeText on both sides.
func (s *MemoryStore) LookupByName(_ context.Context, vocabulary, name string) (int64, bool, error) {
	id, ok := s.byName[codeKey{vocabulary, NormalizeText(name)}]
	return id, ok, nil
}

// MapsTo implements ConceptStore.
func (s *MemoryStore) MapsTo(_ context.Context, sourceConceptID int64) (int64, bool, error) {
	id, ok := s.mapsTo[sourceConceptID]
	return id, ok, nil
}

// LoadMemoryStore reads Athena vocabulary exports (tab-separated
// CONCEPT.csv and CONCEPT_RELATIONSHIP.csv) into a MemoryStore. The
// relationship path may be empty when only code lookups are needed.
func LoadMemoryStore(conceptPath, relationshipPath string) (*MemoryStore, error) {
	concepts, err := readConceptFile(conceptPath)
	if err != nil {
		return nil, fmt.Errorf("read concepts: %w", err)
	}

	mapsTo := map[int64]int64{}
	if relationshipPath != "" {
		mapsTo, err = readRelationshipFile(relationshipPath)
		if err != nil {
			return nil, fmt.Errorf("read concept relationships: %w", err)
		}
	}

	return NewMemoryStore(concepts, mapsTo), nil
}

func readConceptFile(path string) ([]Concept, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	r := newAthenaReader(file)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := indexColumns(header, "concept_id", "concept_name", "vocabulary_id", "concept_code", "domain_id")
	if err != nil {
		return nil, err
	}

	var out []Concept
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		id, err := strconv.ParseInt(row[idx["concept_id"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse concept_id %q: %w", row[idx["concept_id"]], err)
		}
		out = append(out, Concept{
			ID:           id,
			Code:         row[idx["concept_code"]],
			Name:         row[idx["concept_name"]],
			VocabularyID: row[idx["vocabulary_id"]],
			DomainID:     row[idx["domain_id"]],
		})
	}
	return out, nil
}

func readRelationshipFile(path string) (map[int64]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	r := newAthenaReader(file)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := indexColumns(header, "concept_id_1", "concept_id_2", "relationship_id")
	if err != nil {
		return nil, err
	}

	out := map[int64]int64{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if row[idx["relationship_id"]] != "Maps to" {
			continue
		}
		from, err := strconv.ParseInt(row[idx["concept_id_1"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse concept_id_1 %q: %w", row[idx["concept_id_1"]], err)
		}
		to, err := strconv.ParseInt(row[idx["concept_id_2"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse concept_id_2 %q: %w", row[idx["concept_id_2"]], err)
		}
		out[from] = to
	}
	return out, nil
}

// newAthenaReader configures a csv.Reader for Athena exports, which are
// tab-separated and may embed quotes in concept names.
func newAthenaReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	return cr
}

func indexColumns(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %v", missing)
	}
	return idx, nil
}
