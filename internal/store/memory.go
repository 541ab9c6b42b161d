package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory store for tests and one-shot runs.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]Document
	history  map[string][]VersionEntry
	rewrites map[string]Rewrites
}

// NewMemory creates a new in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]Document),
		history:  make(map[string][]VersionEntry),
		rewrites: make(map[string]Rewrites),
	}
}

// GetDocument retrieves a document by id.
func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[id]; ok {
		return &d, nil
	}
	return nil, nil
}

// PutDocument stores a document and records a version when the text changed.
func (m *Memory) PutDocument(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.Updated.IsZero() {
		doc.Updated = time.Now().UTC()
	}
	prev, exists := m.docs[doc.ID]
	m.docs[doc.ID] = doc
	if exists && prev.Text == doc.Text {
		return nil
	}
	versions := m.history[doc.ID]
	m.history[doc.ID] = append(versions, VersionEntry{
		Version: len(versions) + 1,
		Text:    doc.Text,
		Ts:      doc.Updated.Format(time.RFC3339),
	})
	return nil
}

// DeleteDocument removes a document with its history and rewrites.
func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	delete(m.history, id)
	delete(m.rewrites, id)
	return nil
}

// ListDocuments returns all documents, most recently updated first.
func (m *Memory) ListDocuments(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].Updated.Equal(docs[j].Updated) {
			return docs[i].Updated.After(docs[j].Updated)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// GetRewrites retrieves the accepted rewrites of a document.
func (m *Memory) GetRewrites(_ context.Context, id string) (*Rewrites, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rw, ok := m.rewrites[id]
	if !ok {
		return nil, nil
	}
	rw.Lines = maps.Clone(rw.Lines)
	return &rw, nil
}

// PutRewrites replaces the accepted rewrites of a document.
func (m *Memory) PutRewrites(_ context.Context, id string, rw Rewrites) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rw.Lines = maps.Clone(rw.Lines)
	m.rewrites[id] = rw
	return nil
}

// GetHistory returns the versions of a document, newest first.
func (m *Memory) GetHistory(_ context.Context, id string, limit int) ([]VersionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.history[id]
	if len(versions) == 0 {
		return nil, nil
	}
	out := make([]VersionEntry, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, versions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for memory store.
func (m *Memory) Close() error {
	return nil
}
