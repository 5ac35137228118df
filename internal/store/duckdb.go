package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/Lllllllleong/documentspecflow/internal/models"
)

const duckSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id                VARCHAR PRIMARY KEY,
	stored_filename   VARCHAR NOT NULL,
	original_filename VARCHAR NOT NULL,
	content_type      VARCHAR NOT NULL DEFAULT '',
	status            VARCHAR NOT NULL,
	error_details     VARCHAR NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS blocks (
	document_id VARCHAR NOT NULL,
	seq         INTEGER NOT NULL,
	text        VARCHAR NOT NULL,
	x           DOUBLE NOT NULL,
	y           DOUBLE NOT NULL,
	width       DOUBLE NOT NULL,
	height      DOUBLE NOT NULL,
	confidence  DOUBLE NOT NULL DEFAULT 0,
	PRIMARY KEY (document_id, seq)
);
CREATE TABLE IF NOT EXISTS specs (
	document_id VARCHAR NOT NULL,
	version     INTEGER NOT NULL,
	content     VARCHAR NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (document_id, version)
);
`

// DuckStore is the relational backend used for local runs and single-node
// deployments. The (document_id, version) primary key on specs rejects
// duplicate versions. Writes go through one mutex because DuckDB reports
// concurrent updates of the same row as transaction conflicts.
type DuckStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewDuckStore opens (or creates) the database at path. An empty path or
// ":memory:" gives an in-memory database shared by all pooled connections.
func NewDuckStore(path string) (*DuckStore, error) {
	if path == ":memory:" {
		path = ""
	}
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		_, err := execer.ExecContext(context.Background(), "SET enable_progress_bar = false", nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if _, err := db.Exec(duckSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	slog.Info("DuckDB store ready.", "path", path)
	return &DuckStore{db: db}, nil
}

func (s *DuckStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, stored_filename, original_filename, content_type, status, error_details, page_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.StoredFilename, doc.OriginalFilename, doc.ContentType, string(doc.Status),
		doc.ErrorDetails, doc.PageCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

const documentColumns = `id, stored_filename, original_filename, content_type, status, error_details, page_count, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	var st string
	if err := row.Scan(&doc.ID, &doc.StoredFilename, &doc.OriginalFilename, &doc.ContentType,
		&st, &doc.ErrorDetails, &doc.PageCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = models.Status(st)
	return &doc, nil
}

func (s *DuckStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return doc, nil
}

// UpdateStatus is a single conditional UPDATE; zero affected rows means the
// document is missing or its status did not satisfy the precondition.
func (s *DuckStore) UpdateStatus(ctx context.Context, id string, to models.Status, details string, from ...models.Status) error {
	allowed := allowedFrom(to, from)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: nothing may move to %s", ErrInvalidTransition, to)
	}
	if to != models.StatusError {
		details = ""
	}

	placeholders := make([]string, len(allowed))
	args := []any{string(to), details, time.Now().UTC(), id}
	for i, st := range allowed {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	query := `UPDATE documents SET status = ?, error_details = ?, updated_at = ?
		WHERE id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)`

	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, query, args...)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n > 0 {
		return nil
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, to)
}

func (s *DuckStore) ListStale(ctx context.Context, st models.Status, before time.Time) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		string(st), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query stale documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SaveBlock overwrites a block with the same sequence number so a retried
// ingest does not duplicate rows.
func (s *DuckStore) SaveBlock(ctx context.Context, b *models.OCRBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO blocks (document_id, seq, text, x, y, width, height, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.DocumentID, b.Seq, b.Text, b.X, b.Y, b.Width, b.Height, b.Confidence)
	if err != nil {
		return fmt.Errorf("failed to save block %d: %w", b.Seq, err)
	}
	return nil
}

func (s *DuckStore) ListBlocks(ctx context.Context, documentID string) ([]models.OCRBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, seq, text, x, y, width, height, confidence
		FROM blocks WHERE document_id = ? ORDER BY seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.OCRBlock
	for rows.Next() {
		var b models.OCRBlock
		if err := rows.Scan(&b.DocumentID, &b.Seq, &b.Text, &b.X, &b.Y, &b.Width, &b.Height, &b.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *DuckStore) MaxVersion(ctx context.Context, documentID string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM specs WHERE document_id = ?`, documentID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read max version: %w", err)
	}
	return v, nil
}

func (s *DuckStore) InsertSpec(ctx context.Context, spec *models.Spec) error {
	content, err := json.Marshal(spec.Content)
	if err != nil {
		return fmt.Errorf("failed to encode spec content: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO specs (document_id, version, content, created_at) VALUES (?, ?, ?, ?)`,
		spec.DocumentID, spec.Version, string(content), spec.CreatedAt)
	if isDuckConflict(err) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert spec: %w", err)
	}
	return nil
}

// isDuckConflict reports a primary-key collision on specs. Other constraint
// failures, NOT NULL among them, are real errors.
func isDuckConflict(err error) bool {
	if err == nil {
		return false
	}
	var duckErr *duckdb.Error
	if !errors.As(err, &duckErr) {
		return false
	}
	switch duckErr.Type {
	case duckdb.ErrorTypeConstraint:
		msg := strings.ToLower(duckErr.Msg)
		return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "primary key")
	case duckdb.ErrorTypeTransaction:
		return true
	}
	return false
}

func (s *DuckStore) ListSpecs(ctx context.Context, documentID string) ([]models.Spec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, version, content, created_at
		FROM specs WHERE document_id = ? ORDER BY version`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specs: %w", err)
	}
	defer rows.Close()

	var specs []models.Spec
	for rows.Next() {
		var sp models.Spec
		var content string
		if err := rows.Scan(&sp.DocumentID, &sp.Version, &content, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spec: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &sp.Content); err != nil {
			return nil, fmt.Errorf("failed to decode spec %d: %w", sp.Version, err)
		}
		specs = append(specs, sp)
	}
	return specs, rows.Err()
}

func (s *DuckStore) Close() error {
	return s.db.Close()
}

var _ Store = (*DuckStore)(nil)
