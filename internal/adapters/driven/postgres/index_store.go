package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexRepository = (*IndexStore)(nil)

// IndexStore implements driven.IndexRepository using PostgreSQL.
// Save replaces the blob and every chunk row in one transaction and Load
// reads both inside one repeatable-read transaction, so a loaded blob is
// never paired with another save's mapping. created_at is stored with
// microsecond precision, which is what domain.NewChunk stamps.
type IndexStore struct {
	db *DB
}

// NewIndexStore creates a new IndexStore
func NewIndexStore(db *DB) *IndexStore {
	return &IndexStore{db: db}
}

// Name returns the backend name
func (s *IndexStore) Name() string {
	return "postgres"
}

// Save replaces the stored snapshot
func (s *IndexStore) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_chunks`); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO qa_index_blobs (id, data, updated_at)
			VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at
		`, snapshot.Index)
		if err != nil {
			return fmt.Errorf("save index blob: %w", err)
		}

		if len(snapshot.Mapping) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO qa_chunks (key, document_name, chunk_index, text, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, chunk := range snapshot.Mapping {
			if _, err := stmt.ExecContext(ctx, key, chunk.DocumentName, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt); err != nil {
				return fmt.Errorf("save chunk %s: %w", key, err)
			}
		}
		return nil
	})
}

// Load reads the blob and the chunk rows from one snapshot of the database.
func (s *IndexStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	var snapshot *domain.Snapshot
	err := s.db.ReadTransaction(ctx, func(tx *sql.Tx) error {
		var blob []byte
		err := tx.QueryRowContext(ctx, `SELECT data FROM qa_index_blobs WHERE id = 1`).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load index blob: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT key, document_name, chunk_index, text, created_at
			FROM qa_chunks
		`)
		if err != nil {
			return fmt.Errorf("load chunks: %w", err)
		}
		defer rows.Close()

		mapping := make(domain.ChunkMapping)
		for rows.Next() {
			var key string
			var chunk domain.Chunk
			if err := rows.Scan(&key, &chunk.DocumentName, &chunk.ChunkIndex, &chunk.Text, &chunk.CreatedAt); err != nil {
				return err
			}
			chunk.CreatedAt = chunk.CreatedAt.UTC()
			mapping[key] = &chunk
		}
		if err := rows.Err(); err != nil {
			return err
		}

		snapshot = &domain.Snapshot{Index: blob, Mapping: mapping}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Clear removes the stored snapshot
func (s *IndexStore) Clear(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_chunks`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM qa_index_blobs`)
		return err
	})
}
