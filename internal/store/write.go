package store

import (
	"context"
	"fmt"
	"strings"
)

// Record inserts key (and payload, for tables that have one) into table t.
// Uses ON CONFLICT DO NOTHING: if the key is already present, whether from an
// earlier run or a concurrent writer, the existing row is kept and Record
// returns nil.
func (s *Store) Record(ctx context.Context, t Table, key []string, payload []byte) error {
	if err := s.checkKey(t, key); err != nil {
		return fmt.Errorf("record %s: %w", t.Name, err)
	}

	cols := make([]string, 0, len(t.Keys)+1)
	for _, k := range t.Keys {
		cols = append(cols, quoteIdent(k))
	}
	args := keyArgs(key)
	if t.Payload != "" {
		cols = append(cols, quoteIdent(t.Payload))
		if payload == nil {
			payload = []byte{}
		}
		args = append(args, payload)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		quoteIdent(t.Name),
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s: %w", t.Name, err)
	}
	return nil
}
