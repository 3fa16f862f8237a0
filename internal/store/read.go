package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Lookup reports whether key is cached in table t and returns the stored
// payload, if the table has one. Readers never block on concurrent writers.
func (s *Store) Lookup(ctx context.Context, t Table, key []string) ([]byte, bool, error) {
	if err := s.checkKey(t, key); err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", t.Name, err)
	}

	col := "1"
	if t.Payload != "" {
		col = quoteIdent(t.Payload)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", col, quoteIdent(t.Name), whereKeys(t.Keys))

	var payload []byte
	var present int64
	dest := any(&present)
	if t.Payload != "" {
		dest = &payload
	}
	err := s.db.QueryRowContext(ctx, query, keyArgs(key)...).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", t.Name, err)
	}
	return payload, true, nil
}

// TableCount is the number of cached entries in one table.
type TableCount struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Counts returns the row count of every registered table, in registration order.
func (s *Store) Counts(ctx context.Context) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(s.tables))
	for _, t := range s.tables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.Name)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		counts = append(counts, TableCount{Name: t.Name, Rows: n})
	}
	return counts, nil
}

func (s *Store) checkKey(t Table, key []string) error {
	if _, ok := s.byName[t.Name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownTable, t.Name)
	}
	if len(key) != len(t.Keys) {
		return fmt.Errorf("%w: got %d parts, want %d", ErrKeyArity, len(key), len(t.Keys))
	}
	return nil
}

func whereKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteIdent(k) + " = ?"
	}
	return strings.Join(parts, " AND ")
}

func keyArgs(key []string) []any {
	args := make([]any, len(key))
	for i, k := range key {
		args[i] = k
	}
	return args
}
