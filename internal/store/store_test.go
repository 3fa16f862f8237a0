package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.sqlite")

	s, err := Open(path, testIdentity, formatTable)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if !s.Fresh() {
		t.Error("new database should report Fresh")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path, testIdentity, formatTable, lintTable)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		if i > 0 && s.Fresh() {
			t.Errorf("iteration %d: reopen with same identity reset the cache", i)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_TableSchema(t *testing.T) {
	s := createTestStore(t)

	var sqlText string
	err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'linter'`).Scan(&sqlText)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := "CREATE TABLE \"linter\" (\n    \"version\" TEXT NOT NULL,\n    \"source_hash\" TEXT NOT NULL,\n    \"hints\" BLOB NOT NULL,\n    UNIQUE (\"version\", \"source_hash\")\n)"
	if sqlText != want {
		t.Errorf("schema =\n%s\nwant\n%s", sqlText, want)
	}
}

func TestOpen_IdentityMismatchResets(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	if err := s.Record(ctx, formatTable, []string{"v1", "c", "s"}, nil); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if _, err := s.db.Exec(`CREATE TABLE retired_tool (x TEXT)`); err != nil {
		t.Fatalf("create retired table: %v", err)
	}

	s2 := reopen(t, s, "build-2/schema-1", formatTable, lintTable)
	if !s2.Fresh() {
		t.Error("identity mismatch should reset the cache")
	}

	_, found, err := s2.Lookup(ctx, formatTable, []string{"v1", "c", "s"})
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if found {
		t.Error("entry survived reset")
	}

	var n int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'retired_tool'`).Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 0 {
		t.Error("reset must drop tables of unknown tool kinds")
	}

	var id string
	if err := s2.db.QueryRow(`SELECT id FROM binary_identity`).Scan(&id); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if id != "build-2/schema-1" {
		t.Errorf("identity = %q", id)
	}
}

func TestOpen_MatchingIdentityKeepsEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	if err := s.Record(ctx, formatTable, []string{"v1", "c", "s"}, nil); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	s2 := reopen(t, s, testIdentity, formatTable, lintTable)
	_, found, err := s2.Lookup(ctx, formatTable, []string{"v1", "c", "s"})
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if !found {
		t.Error("entry lost across reopen with same identity")
	}
}

func TestOpen_DuplicateIdentityRowsReset(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	if err := s.Record(ctx, formatTable, []string{"v1", "c", "s"}, nil); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO binary_identity (id) VALUES ('stray')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	s2 := reopen(t, s, testIdentity, formatTable, lintTable)
	if !s2.Fresh() {
		t.Error("two identity rows should force a reset")
	}
	var n int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM binary_identity`).Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 1 {
		t.Errorf("binary_identity rows = %d, want 1", n)
	}
}

func TestOpen_EmptyIdentityTableResets(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.db.Exec(`DELETE FROM binary_identity`); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	s2 := reopen(t, s, testIdentity, formatTable, lintTable)
	if !s2.Fresh() {
		t.Error("empty identity table should force a reset")
	}
}

func TestOpen_NewTableWithoutReset(t *testing.T) {
	s := createTestStore(t, formatTable)
	ctx := t.Context()

	if err := s.Record(ctx, formatTable, []string{"v1", "c", "s"}, nil); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	s2 := reopen(t, s, testIdentity, formatTable, lintTable)
	if s2.Fresh() {
		t.Error("registering a new table must not reset the cache")
	}
	if _, found, _ := s2.Lookup(ctx, formatTable, []string{"v1", "c", "s"}); !found {
		t.Error("existing entry lost")
	}
	if err := s2.Record(ctx, lintTable, []string{"v1", "s"}, []byte("[]")); err != nil {
		t.Errorf("new table not usable: %v", err)
	}
}

func TestClose_NilSafe(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil store: %v", err)
	}
	if err := (&Store{}).Close(); err != nil {
		t.Errorf("Close() on empty store: %v", err)
	}
}
