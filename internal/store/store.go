// Package store persists document text and accepted AI rewrites.
package store

import (
	"context"
	"time"

	"nickandperla.net/tally/internal/rewrite"
)

// Document is a stored calculator document.
type Document struct {
	ID      string
	Text    string
	Updated time.Time
}

// Rewrites is the last accepted AI answer for a document, together with
// the fingerprint of the request it answered.
type Rewrites struct {
	LinesHash string
	Lines     map[int]rewrite.Rewrite
}

// Store is the interface for document persistence.
type Store interface {
	// GetDocument retrieves a document by id. Returns nil if not found.
	GetDocument(ctx context.Context, id string) (*Document, error)
	// PutDocument stores a document, overwriting if it exists. Storing
	// unchanged text does not create a new version.
	PutDocument(ctx context.Context, doc Document) error
	// DeleteDocument removes a document, its history and its rewrites.
	DeleteDocument(ctx context.Context, id string) error
	// ListDocuments returns all documents, most recently updated first.
	ListDocuments(ctx context.Context) ([]Document, error)
	// GetRewrites retrieves the accepted rewrites of a document.
	// Returns nil if none were stored.
	GetRewrites(ctx context.Context, id string) (*Rewrites, error)
	// PutRewrites replaces the accepted rewrites of a document.
	PutRewrites(ctx context.Context, id string, rw Rewrites) error
	// Close releases resources.
	Close() error
}

// VersionEntry represents a single version of a document's text.
type VersionEntry struct {
	Version int
	Text    string
	Ts      string
}

// HistoryStore extends Store with version history queries.
type HistoryStore interface {
	// GetHistory returns versions newest first; limit <= 0 means all.
	GetHistory(ctx context.Context, id string, limit int) ([]VersionEntry, error)
}
