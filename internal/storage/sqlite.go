package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kansa/internal/models"
)

// SQLiteStorage implements GuidelineCache and AnalysisStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guideline_sources (
		path TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS guideline_chunks (
		position INTEGER PRIMARY KEY,
		source_id TEXT NOT NULL,
		text TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		document_id TEXT,
		discipline TEXT,
		document_type TEXT,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		is_compliant INTEGER NOT NULL,
		finding_count INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// LoadGuidelineCache returns the cached chunks ordered by index position and the cached source states.
func (s *SQLiteStorage) LoadGuidelineCache(ctx context.Context) ([]models.GuidelineChunk, []models.SourceState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, text FROM guideline_chunks ORDER BY position`)
	if err != nil {
		return nil, nil, fmt.Errorf("query guideline chunks: %w", err)
	}
	defer rows.Close()

	chunks := []models.GuidelineChunk{}
	for rows.Next() {
		var c models.GuidelineChunk
		if err := rows.Scan(&c.SourceID, &c.Text); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	srows, err := s.db.QueryContext(ctx, `SELECT path, checksum, size, mod_time FROM guideline_sources ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("query guideline sources: %w", err)
	}
	defer srows.Close()

	var states []models.SourceState
	for srows.Next() {
		var st models.SourceState
		var modTime sql.NullTime
		if err := srows.Scan(&st.Path, &st.Checksum, &st.Size, &modTime); err != nil {
			return nil, nil, err
		}
		st.ModTime = modTime.Time
		states = append(states, st)
	}
	return chunks, states, srows.Err()
}

// ReplaceGuidelineCache replaces all cached chunks and source states in one transaction.
func (s *SQLiteStorage) ReplaceGuidelineCache(ctx context.Context, chunks []models.GuidelineChunk, states []models.SourceState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{`DELETE FROM guideline_chunks`, `DELETE FROM guideline_sources`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear guideline cache: %w", err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx, `INSERT INTO guideline_chunks (position, source_id, text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()
	for i, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, i, c.SourceID, c.Text); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.SourceID, err)
		}
	}

	srcStmt, err := tx.PrepareContext(ctx, `INSERT INTO guideline_sources (path, checksum, size, mod_time) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer srcStmt.Close()
	for _, st := range states {
		if _, err := srcStmt.ExecContext(ctx, st.Path, st.Checksum, st.Size, st.ModTime); err != nil {
			return fmt.Errorf("insert source %s: %w", st.Path, err)
		}
	}
	return tx.Commit()
}

// SaveAnalysis stores a compliance result. Saving the same ID twice replaces the record.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, result *models.ComplianceResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	createdAt := result.AnalyzedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analyses
		 (id, document_id, discipline, document_type, mode, status, is_compliant, finding_count, result_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Document.ID, result.Document.Discipline, result.Document.DocumentType,
		result.Mode, result.Status, result.IsCompliant, len(result.Findings), string(data), createdAt,
	)
	return err
}

// GetAnalysis returns a stored result by ID. Rule pointers are not restored; RuleURI identifies the rule.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, id string) (*models.ComplianceResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM analyses WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var result models.ComplianceResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ListAnalyses returns analysis summaries, newest first.
func (s *SQLiteStorage) ListAnalyses(ctx context.Context, offset, limit int) ([]*models.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, discipline, document_type, mode, status, is_compliant, finding_count, created_at
		 FROM analyses ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AnalysisRecord
	for rows.Next() {
		var r models.AnalysisRecord
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Discipline, &r.DocumentType, &r.Mode, &r.Status,
			&r.IsCompliant, &r.FindingCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// CountAnalyses returns the number of stored analyses.
func (s *SQLiteStorage) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
