package vocab

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a ConceptStore backed by an OMOP vocabulary schema in
// Postgres (the usual home of Athena-loaded CONCEPT tables).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the vocabulary database.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect vocabulary database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping vocabulary database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// LookupByCode implements ConceptStore.
func (s *PostgresStore) LookupByCode(ctx context.Context, vocabulary, code string) (int64, bool, error) {
	return s.lookup(ctx,
		`SELECT concept_id FROM concept
		 WHERE vocabulary_id = $1 AND concept_code = $2
		 ORDER BY concept_id LIMIT 1`,
		vocabulary, code)
}

// LookupByName implements ConceptStore. Matching is case-insensitive on
// the database side; the input is also run through NormalizeText so
// accented source values behave like the in-memory store.
func (s *PostgresStore) LookupByName(ctx context.Context, vocabulary, name string) (int64, bool, error) {
	return s.lookup(ctx,
		`SELECT concept_id FROM concept
		 WHERE vocabulary_id = $1 AND lower(concept_name) = $2
		 ORDER BY concept_id LIMIT 1`,
		vocabulary, NormalizeText(name))
}

// MapsTo implements ConceptStore.
func (s *PostgresStore) MapsTo(ctx context.Context, sourceConceptID int64) (int64, bool, error) {
	return s.lookup(ctx,
		`SELECT concept_id_2 FROM concept_relationship
		 WHERE concept_id_1 = $1 AND relationship_id = 'Maps to'
		 ORDER BY concept_id_2 LIMIT 1`,
		sourceConceptID)
}

func (s *PostgresStore) lookup(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query concept: %w", err)
	}
	return id, true, nil
}
