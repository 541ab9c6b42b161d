package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nickandperla.net/tally/internal/rewrite"
)

type historyStore interface {
	Store
	HistoryStore
}

func exerciseStore(t *testing.T, s historyStore) {
	ctx := context.Background()

	got, err := s.GetDocument(ctx, "budget")
	if err != nil {
		t.Fatalf("GetDocument on empty store failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil document, got %+v", got)
	}

	// Put creates version 1
	if err := s.PutDocument(ctx, Document{ID: "budget", Text: "Rent = 1200"}); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}
	got, err = s.GetDocument(ctx, "budget")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got == nil || got.Text != "Rent = 1200" {
		t.Fatalf("expected stored text, got %+v", got)
	}
	if got.Updated.IsZero() {
		t.Error("expected update timestamp")
	}

	// Different text creates version 2, same text is a no-op
	s.PutDocument(ctx, Document{ID: "budget", Text: "Rent = 1300"})
	s.PutDocument(ctx, Document{ID: "budget", Text: "Rent = 1300"})

	entries, err := s.GetHistory(ctx, "budget", 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Version != 2 || entries[0].Text != "Rent = 1300" {
		t.Errorf("entry[0]: expected v2 'Rent = 1300', got v%d '%s'", entries[0].Version, entries[0].Text)
	}
	if entries[1].Version != 1 || entries[1].Text != "Rent = 1200" {
		t.Errorf("entry[1]: expected v1 'Rent = 1200', got v%d '%s'", entries[1].Version, entries[1].Text)
	}
	if entries[0].Ts == "" {
		t.Error("expected non-empty timestamp")
	}

	entries, _ = s.GetHistory(ctx, "budget", 1)
	if len(entries) != 1 || entries[0].Version != 2 {
		t.Fatalf("expected only v2 with limit, got %+v", entries)
	}

	// Rewrites round trip
	rw, err := s.GetRewrites(ctx, "budget")
	if err != nil || rw != nil {
		t.Fatalf("expected no rewrites, got %+v, %v", rw, err)
	}
	want := Rewrites{
		LinesHash: "0123456789abcdef",
		Lines: map[int]rewrite.Rewrite{
			1: {Kind: rewrite.KindRewrite, RHS: "2 * 150000", Explanation: "Engineers", Confidence: 0.8},
		},
	}
	if err := s.PutRewrites(ctx, "budget", want); err != nil {
		t.Fatalf("PutRewrites failed: %v", err)
	}
	rw, err = s.GetRewrites(ctx, "budget")
	if err != nil {
		t.Fatalf("GetRewrites failed: %v", err)
	}
	if rw == nil || rw.LinesHash != want.LinesHash || rw.Lines[1] != want.Lines[1] {
		t.Errorf("rewrites mismatch: got %+v", rw)
	}

	// Listing is newest first
	s.PutDocument(ctx, Document{ID: "trip", Text: "Hotel: $300", Updated: time.Now().UTC().Add(time.Hour)})
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "trip" {
		t.Errorf("expected trip first, got %+v", docs)
	}

	// Delete removes versions and rewrites
	if err := s.DeleteDocument(ctx, "budget"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	got, _ = s.GetDocument(ctx, "budget")
	entries, _ = s.GetHistory(ctx, "budget", 0)
	rw, _ = s.GetRewrites(ctx, "budget")
	if got != nil || len(entries) != 0 || rw != nil {
		t.Errorf("expected everything deleted, got %+v %+v %+v", got, entries, rw)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally-test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	exerciseStore(t, s)

	// Close and reopen to verify persistence
	s.PutDocument(context.Background(), Document{ID: "kept", Text: "x = 1"})
	s.Close()

	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetDocument(context.Background(), "kept")
	if err != nil {
		t.Fatalf("GetDocument after reopen failed: %v", err)
	}
	if got == nil || got.Text != "x = 1" {
		t.Errorf("expected 'x = 1' after reopen, got %+v", got)
	}
}

func TestSQLiteRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	db.Exec(`INSERT INTO metadata (key, value) VALUES ('schema_version', '99')`)
	db.Close()

	if s, err := NewSQLite(path); err == nil {
		s.Close()
		t.Fatal("expected unsupported schema version error")
	}
}

func TestRebind(t *testing.T) {
	s := &SQL{dialect: dialectPostgres}
	got := s.rebind("SELECT a FROM t WHERE b = ? AND c = ?")
	if got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}
	s.dialect = dialectSQLite
	if got := s.rebind("b = ?"); got != "b = ?" {
		t.Errorf("sqlite query changed: %s", got)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TALLY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TALLY_TEST_PG_DSN not set")
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for _, id := range []string{"budget", "trip"} {
		s.DeleteDocument(ctx, id)
	}
	exerciseStore(t, s)
}
