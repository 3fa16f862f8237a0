package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// maxOpenConns bounds the pool. WAL lets readers run alongside the single
// writer; writers beyond the first wait on busy_timeout.
const maxOpenConns = 8

var (
	// ErrUnknownTable is returned for a table not passed to Open.
	ErrUnknownTable = errors.New("unknown table")
	// ErrKeyArity is returned when a key has the wrong number of parts.
	ErrKeyArity = errors.New("key arity mismatch")
)

// Table describes one tool kind's cache table.
type Table struct {
	Name string
	// Keys are the TEXT columns forming the unique cache key.
	Keys []string
	// Payload is the BLOB column holding replayable output. Empty for tools
	// whose hit needs no stored output.
	Payload string
}

// Store is the persistent tool-result cache.
type Store struct {
	db       *sql.DB
	path     string
	identity string
	tables   []Table
	byName   map[string]Table
	fresh    bool
}

// Open creates or opens the cache database at path for the build named by
// identity and ensures every table exists.
//
// If the database was written by a different build, or its identity table is
// not exactly one matching row, every table is dropped and recreated before
// Open returns. The reset is a single transaction: it happens completely or
// not at all.
func Open(path, identity string, tables ...Table) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	s := &Store{
		db:       db,
		path:     path,
		identity: identity,
		tables:   tables,
		byName:   make(map[string]Table, len(tables)),
	}
	for _, t := range tables {
		s.byName[t.Name] = t
	}

	if err := s.applySchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Identity returns the build identity the store is valid for.
func (s *Store) Identity() string {
	return s.identity
}

// Fresh reports whether Open reset (or created) the cache.
func (s *Store) Fresh() bool {
	return s.fresh
}

// Tables returns the registered tables in registration order.
func (s *Store) Tables() []Table {
	return s.tables
}

// applySchema checks the binary identity and resets the cache on mismatch,
// then creates any missing tool tables. Runs in one transaction.
func (s *Store) applySchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	ok, err := identityMatches(ctx, tx, s.identity)
	if err != nil {
		return err
	}
	if !ok {
		if err := reset(ctx, tx, s.identity); err != nil {
			return err
		}
		s.fresh = true
	}

	for _, t := range s.tables {
		if _, err := tx.ExecContext(ctx, t.createSQL()); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func identityMatches(ctx context.Context, tx *sql.Tx, identity string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM binary_identity LIMIT 2`)
	if err != nil {
		return false, fmt.Errorf("read binary identity: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return false, fmt.Errorf("read binary identity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("read binary identity: %w", err)
	}
	return len(ids) == 1 && ids[0] == identity, nil
}

// reset drops every user table, including tables of tool kinds this build no
// longer knows, and records identity as the new owner.
func reset(ctx context.Context, tx *sql.Tx, identity string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO binary_identity (id) VALUES (?)`, identity); err != nil {
		return fmt.Errorf("write binary identity: %w", err)
	}
	return nil
}

func (t Table) createSQL() string {
	cols := make([]string, 0, len(t.Keys)+1)
	keys := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		cols = append(cols, quoteIdent(k)+" TEXT NOT NULL")
		keys[i] = quoteIdent(k)
	}
	if t.Payload != "" {
		cols = append(cols, quoteIdent(t.Payload)+" BLOB NOT NULL")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s,\n    UNIQUE (%s)\n)",
		quoteIdent(t.Name), strings.Join(cols, ",\n    "), strings.Join(keys, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
