package store

import (
	"path/filepath"
	"testing"
)

var (
	formatTable = Table{Name: "formatter", Keys: []string{"version", "config_hash", "source_hash"}}
	lintTable   = Table{Name: "linter", Keys: []string{"version", "source_hash"}, Payload: "hints"}
)

const testIdentity = "build-1/schema-1"

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T, tables ...Table) *Store {
	t.Helper()
	if len(tables) == 0 {
		tables = []Table{formatTable, lintTable}
	}
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testIdentity, tables...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// reopen closes s and opens the same file under identity.
func reopen(t *testing.T, s *Store, identity string, tables ...Table) *Store {
	t.Helper()
	path := s.Path()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	s2, err := Open(path, identity, tables...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s2.Close() })
	return s2
}
