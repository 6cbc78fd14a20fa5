package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// SQLiteStagingStore implements the staging queue on SQLite, for
// single-process/offline development where standing up Postgres is
// unwarranted. It is the only embedded-database store in the ingestion
// core.
type SQLiteStagingStore struct {
	db *sql.DB
}

// NewSQLiteStagingStore opens (creating if needed) the SQLite staging database.
func NewSQLiteStagingStore(dbPath string) (*SQLiteStagingStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if err := createStagingSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating staging schema: %w", err)
	}
	return &SQLiteStagingStore{db: db}, nil
}

func createStagingSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS staging_records (
		id TEXT PRIMARY KEY,
		raw_text TEXT NOT NULL,
		source_hint TEXT DEFAULT '',
		candidates TEXT DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer_id TEXT DEFAULT '',
		reason TEXT DEFAULT '',
		linked_gene_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_staging_status ON staging_records(status);
	`
	_, err := db.Exec(schema)
	return err
}

// Create inserts a new staging record.
func (s *SQLiteStagingStore) Create(ctx context.Context, rec *domain.StagingRecord) error {
	candidates, err := json.Marshal(rec.Candidates)
	if err != nil {
		return fmt.Errorf("marshaling candidates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO staging_records (id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.RawText, rec.SourceHint, string(candidates), string(rec.Status),
		rec.ReviewerID, rec.Reason, linkedGeneIDString(rec.LinkedGeneID), rec.CreatedAt, rec.ResolvedAt)
	if err != nil {
		return fmt.Errorf("creating staging record: %w", err)
	}
	return nil
}

// Get retrieves a staging record by ID.
func (s *SQLiteStagingStore) Get(ctx context.Context, id uuid.UUID) (*domain.StagingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at
		FROM staging_records WHERE id = ?`, id.String())
	rec, err := scanSQLiteStaging(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting staging record %s: %w", id, err)
	}
	return rec, nil
}

// ListPending returns pending staging records, paginated.
func (s *SQLiteStagingStore) ListPending(ctx context.Context, limit, offset int) ([]*domain.StagingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raw_text, source_hint, candidates, status, reviewer_id, reason, linked_gene_id, created_at, resolved_at
		FROM staging_records WHERE status = ? ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		string(domain.StagingPending), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pending staging records: %w", err)
	}
	defer rows.Close()

	var records []*domain.StagingRecord
	for rows.Next() {
		rec, err := scanSQLiteStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning staging record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Resolve marks a staging record approved/rejected.
func (s *SQLiteStagingStore) Resolve(ctx context.Context, id uuid.UUID, status domain.StagingStatus, reviewerID, reason string, linkedGeneID *uuid.UUID) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE staging_records SET status = ?, reviewer_id = ?, reason = ?, linked_gene_id = ?, resolved_at = ?
		WHERE id = ?`, string(status), reviewerID, reason, linkedGeneIDString(linkedGeneID), now, id.String())
	if err != nil {
		return fmt.Errorf("resolving staging record %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &domain.DataIntegrityError{Message: fmt.Sprintf("staging record %s not found", id)}
	}
	return nil
}

// Close closes the underlying SQLite connection.
func (s *SQLiteStagingStore) Close() error {
	return s.db.Close()
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteStaging(row sqliteScanner) (*domain.StagingRecord, error) {
	var rec domain.StagingRecord
	var idStr, status, candidatesJSON string
	var linkedGeneID sql.NullString
	var resolvedAt sql.NullTime

	if err := row.Scan(&idStr, &rec.RawText, &rec.SourceHint, &candidatesJSON, &status,
		&rec.ReviewerID, &rec.Reason, &linkedGeneID, &rec.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing staging record id: %w", err)
	}
	rec.ID = id
	rec.Status = domain.StagingStatus(status)
	if candidatesJSON != "" {
		if err := json.Unmarshal([]byte(candidatesJSON), &rec.Candidates); err != nil {
			return nil, fmt.Errorf("decoding candidates: %w", err)
		}
	}
	if linkedGeneID.Valid {
		geneID, err := uuid.Parse(linkedGeneID.String)
		if err != nil {
			return nil, fmt.Errorf("parsing linked gene id: %w", err)
		}
		rec.LinkedGeneID = &geneID
	}
	if resolvedAt.Valid {
		rec.ResolvedAt = &resolvedAt.Time
	}
	return &rec, nil
}

func linkedGeneIDString(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
