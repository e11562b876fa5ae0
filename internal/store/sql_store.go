// Package store persists certificates, requirement templates and compliance analyses.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coi-compliance-server/internal/domain"
)

// Dialect selects placeholder syntax and schema handling.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements the document, template and analysis stores over database/sql.
// Analyses are insert-only.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteStore opens (or creates) a SQLite database file and its schema.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLStore{db: db, dialect: DialectSQLite}, nil
}

// NewPostgresStore wraps an open Postgres connection. The schema is created by migrations.
func NewPostgresStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLStore{db: db, dialect: DialectPostgres}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL DEFAULT '',
	text_layer TEXT NOT NULL DEFAULT '',
	content BLOB,
	status TEXT NOT NULL,
	extraction TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	template_id TEXT NOT NULL,
	overall_status TEXT NOT NULL,
	score INTEGER NOT NULL,
	body TEXT NOT NULL,
	analyzed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_document ON analyses(document_id, analyzed_at);
`

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// SaveDocument inserts or replaces a document's metadata and content.
func (s *SQLStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		return domain.NewValidationError("id", "document ID is required", doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Status == "" {
		doc.Status = domain.DocumentUploaded
	}

	extraction, err := marshalNullable(doc.ExtractedData)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (id, file_name, mime_type, text_layer, content, status, extraction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			text_layer = excluded.text_layer,
			content = excluded.content,
			status = excluded.status,
			extraction = excluded.extraction,
			updated_at = excluded.updated_at
	`),
		doc.ID, doc.FileName, doc.MimeType, doc.Text, doc.Content,
		string(doc.Status), extraction, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument loads a document with its latest extraction.
func (s *SQLStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, file_name, mime_type, text_layer, content, status, extraction, created_at, updated_at
		FROM documents
		WHERE id = ?
	`), id)

	doc := &domain.Document{}
	var status string
	var extraction sql.NullString
	err := row.Scan(&doc.ID, &doc.FileName, &doc.MimeType, &doc.Text, &doc.Content,
		&status, &extraction, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	if extraction.Valid && extraction.String != "" {
		doc.ExtractedData = &domain.ExtractionResult{}
		if err := json.Unmarshal([]byte(extraction.String), doc.ExtractedData); err != nil {
			return nil, fmt.Errorf("failed to decode extraction of document %s: %w", id, err)
		}
	}
	return doc, nil
}

// SaveExtraction replaces the document's extraction and marks it processed.
func (s *SQLStore) SaveExtraction(ctx context.Context, documentID string, extraction *domain.ExtractionResult) error {
	data, err := json.Marshal(extraction)
	if err != nil {
		return fmt.Errorf("failed to marshal extraction: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE documents SET extraction = ?, status = ?, updated_at = ? WHERE id = ?
	`), string(data), string(domain.DocumentProcessed), time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	return nil
}

// SaveTemplate validates and upserts a requirement template.
func (s *SQLStore) SaveTemplate(ctx context.Context, template *domain.RequirementTemplate) error {
	if err := template.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO templates (id, name, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, body = excluded.body, updated_at = excluded.updated_at
	`), template.ID, template.Name, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetTemplate loads a requirement template by ID.
func (s *SQLStore) GetTemplate(ctx context.Context, id string) (*domain.RequirementTemplate, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM templates WHERE id = ?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	return decodeTemplate(body)
}

// ListTemplates returns all templates ordered by ID.
func (s *SQLStore) ListTemplates(ctx context.Context) ([]*domain.RequirementTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.RequirementTemplate
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		template, err := decodeTemplate(body)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, rows.Err()
}

// SaveAnalysis inserts an analysis. Saving an existing ID is an error: analyses are
// never updated.
func (s *SQLStore) SaveAnalysis(ctx context.Context, analysis *domain.ComplianceAnalysis) error {
	body, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO analyses (id, document_id, template_id, overall_status, score, body, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		analysis.ID, analysis.DocumentID, analysis.TemplateID,
		string(analysis.OverallStatus), analysis.Score, string(body), analysis.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// GetAnalysis loads an analysis by ID.
func (s *SQLStore) GetAnalysis(ctx context.Context, id string) (*domain.ComplianceAnalysis, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM analyses WHERE id = ?`), id)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, domain.ErrNotFound)
	}
	return analysis, err
}

// ListAnalyses returns a document's analyses, oldest first.
func (s *SQLStore) ListAnalyses(ctx context.Context, documentID string) ([]*domain.ComplianceAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT body FROM analyses WHERE document_id = ? ORDER BY analyzed_at, id
	`), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*domain.ComplianceAnalysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanAnalysis(s scanner) (*domain.ComplianceAnalysis, error) {
	var body string
	if err := s.Scan(&body); err != nil {
		return nil, err
	}
	analysis := &domain.ComplianceAnalysis{}
	if err := json.Unmarshal([]byte(body), analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return analysis, nil
}

func decodeTemplate(body string) (*domain.RequirementTemplate, error) {
	template := &domain.RequirementTemplate{}
	if err := json.Unmarshal([]byte(body), template); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return template, nil
}

func marshalNullable(extraction *domain.ExtractionResult) (sql.NullString, error) {
	if extraction == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(extraction)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
