package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"pixelnerd/internal/types"
)

// SQLiteBackend brute-forces cosine similarity over feature vectors stored in
// a side table. Fine at the store's retention scale; a dedicated vector index
// would be overkill for a few hundred rows.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps an open database. The features table is created by
// the store's schema init.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Insert(ctx context.Context, executionID string, features []float32) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO features (execution_id, vector) VALUES (?, ?)`,
		executionID, encodeVector(features))
	if err != nil {
		return fmt.Errorf("inserting feature vector: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Search(ctx context.Context, features []float32, limit int) ([]types.SimilarityMatch, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT execution_id, vector FROM features`)
	if err != nil {
		return nil, fmt.Errorf("scanning feature vectors: %w", err)
	}
	defer rows.Close()

	var matches []types.SimilarityMatch
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("reading feature row: %w", err)
		}
		matches = append(matches, types.SimilarityMatch{
			ExecutionID: id,
			Similarity:  cosineSimilarity(features, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feature rows: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// NoopBackend is the degraded-mode similarity backend: learning retrieval is
// disabled but nothing errors. Used when the store opens without a usable
// vector table, and in tests.
type NoopBackend struct{}

func (NoopBackend) Name() string { return "noop" }

func (NoopBackend) Insert(ctx context.Context, executionID string, features []float32) error {
	return nil
}

func (NoopBackend) Search(ctx context.Context, features []float32, limit int) ([]types.SimilarityMatch, error) {
	return nil, nil
}
