// Package sqlite persists the index snapshot in a single SQLite file using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexRepository = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS qa_index_blobs (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS qa_chunks (
	key           TEXT PRIMARY KEY,
	document_name TEXT NOT NULL,
	chunk_index   INTEGER NOT NULL,
	text          TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_qa_chunks_document ON qa_chunks (document_name, chunk_index);
`

// Store implements driven.IndexRepository on SQLite. Save, Load and Clear
// each run in one transaction.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer connection avoids SQLITE_BUSY between pool members
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Name returns the backend name
func (s *Store) Name() string {
	return "sqlite"
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Save replaces the stored snapshot
func (s *Store) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_chunks`); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}

		blob := snapshot.Index
		if blob == nil {
			blob = []byte{}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO qa_index_blobs (id, data, updated_at) VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, blob, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save index blob: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO qa_chunks (key, document_name, chunk_index, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, chunk := range snapshot.Mapping {
			_, err := stmt.ExecContext(ctx, key, chunk.DocumentName, chunk.ChunkIndex, chunk.Text,
				chunk.CreatedAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("save chunk %s: %w", key, err)
			}
		}
		return nil
	})
}

// Load reads the blob and the chunk rows inside one read transaction.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	var blob []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM qa_index_blobs WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load index blob: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT key, document_name, chunk_index, text, created_at FROM qa_chunks`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	mapping := make(domain.ChunkMapping)
	for rows.Next() {
		var (
			key     string
			created string
			chunk   domain.Chunk
		)
		if err := rows.Scan(&key, &chunk.DocumentName, &chunk.ChunkIndex, &chunk.Text, &created); err != nil {
			return nil, err
		}
		chunk.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s created_at: %v", domain.ErrCorruptArtifact, key, err)
		}
		mapping[key] = &chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.Snapshot{Index: blob, Mapping: mapping}, nil
}

// Clear removes the stored snapshot
func (s *Store) Clear(ctx context.Context) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_chunks`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM qa_index_blobs`)
		return err
	})
}
