package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"nickandperla.net/tally/internal/rewrite"
)

// Current schema version
const SchemaVersion = "1"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQL is a database/sql backed store shared by the SQLite and Postgres
// drivers. Queries are written with ? placeholders and rebound per dialect.
type SQL struct {
	mu      sync.Mutex
	db      *sql.DB
	dialect dialect
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		updated TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_versions (
		doc_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		text TEXT NOT NULL,
		ts TEXT NOT NULL,
		PRIMARY KEY (doc_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS rewrites (
		doc_id TEXT PRIMARY KEY,
		lines_hash TEXT NOT NULL,
		data TEXT NOT NULL
	)`,
}

func openSQL(driver, dsn string, d dialect) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == dialectSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	s := &SQL{db: db, dialect: d}

	ctx := context.Background()
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	version, err := s.getMetadataUnlocked(ctx, "schema_version")
	if err != nil {
		db.Close()
		return nil, err
	}
	switch version {
	case "":
		if err := s.setMetadataUnlocked(ctx, "schema_version", SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	case SchemaVersion:
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported schema version: %s (expected %s)", version, SchemaVersion)
	}
	return s, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQL) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// GetDocument retrieves a document by id.
func (s *SQL) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var text, updated string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT text, updated FROM documents WHERE id = ?"), id).
		Scan(&text, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, _ := time.Parse(time.RFC3339Nano, updated)
	return &Document{ID: id, Text: text, Updated: ts}, nil
}

// PutDocument stores a document and records a version when the text changed.
func (s *SQL) PutDocument(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Updated.IsZero() {
		doc.Updated = time.Now().UTC()
	}
	ts := doc.Updated.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, s.rebind("SELECT text FROM documents WHERE id = ?"), doc.ID).Scan(&prev)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (id, text, updated) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, updated = excluded.updated
	`), doc.ID, doc.Text, ts); err != nil {
		return err
	}

	if !exists || prev != doc.Text {
		var version int
		if err := tx.QueryRowContext(ctx,
			s.rebind("SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions WHERE doc_id = ?"),
			doc.ID).Scan(&version); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO document_versions (doc_id, version, text, ts) VALUES (?, ?, ?, ?)"),
			doc.ID, version, doc.Text, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteDocument removes a document with its history and rewrites.
func (s *SQL) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		"DELETE FROM documents WHERE id = ?",
		"DELETE FROM document_versions WHERE doc_id = ?",
		"DELETE FROM rewrites WHERE doc_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDocuments returns all documents, most recently updated first.
func (s *SQL) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, text, updated FROM documents ORDER BY updated DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		var updated string
		if err := rows.Scan(&d.ID, &d.Text, &updated); err != nil {
			return nil, err
		}
		d.Updated, _ = time.Parse(time.RFC3339Nano, updated)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetRewrites retrieves the accepted rewrites of a document.
func (s *SQL) GetRewrites(ctx context.Context, id string) (*Rewrites, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash, data string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT lines_hash, data FROM rewrites WHERE doc_id = ?"), id).
		Scan(&hash, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rw := &Rewrites{LinesHash: hash}
	if err := json.Unmarshal([]byte(data), &rw.Lines); err != nil {
		return nil, fmt.Errorf("decode rewrites for %s: %w", id, err)
	}
	return rw, nil
}

// PutRewrites replaces the accepted rewrites of a document.
func (s *SQL) PutRewrites(ctx context.Context, id string, rw Rewrites) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := rw.Lines
	if lines == nil {
		lines = map[int]rewrite.Rewrite{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rewrites (doc_id, lines_hash, data) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET lines_hash = excluded.lines_hash, data = excluded.data
	`), id, rw.LinesHash, string(data))
	return err
}

// GetHistory returns the versions of a document, newest first.
func (s *SQL) GetHistory(ctx context.Context, id string, limit int) ([]VersionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "SELECT version, text, ts FROM document_versions WHERE doc_id = ? ORDER BY version DESC"
	args := []any{id}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []VersionEntry
	for rows.Next() {
		var e VersionEntry
		if err := rows.Scan(&e.Version, &e.Text, &e.Ts); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// GetMetadata retrieves a metadata value by key.
func (s *SQL) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMetadataUnlocked(ctx, key)
}

// getMetadataUnlocked retrieves metadata without locking (caller must hold lock).
func (s *SQL) getMetadataUnlocked(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT value FROM metadata WHERE key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata stores a metadata value by key.
func (s *SQL) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetadataUnlocked(ctx, key, value)
}

// setMetadataUnlocked stores metadata without locking (caller must hold lock).
func (s *SQL) setMetadataUnlocked(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`), key, value)
	return err
}
