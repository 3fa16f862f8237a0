// Package memo provides process-lifetime, get-or-initialize cells.
//
// A Cell computes its value at most once successfully. Callers that arrive
// while the first computation is in flight wait for its result instead of
// starting their own. Failures are not cached: the next caller retries.
package memo

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cell is a lazily initialized value. The zero value is ready to use.
type Cell[T any] struct {
	mu    sync.Mutex
	done  bool
	val   T
	group singleflight.Group
}

// Get returns the cell's value, running init if no value is stored yet.
// init runs with the context of the caller that started the flight, so when
// that context is cancelled every caller waiting on the same flight receives
// the cancellation error, even if its own context is live. The error is not
// stored and the next Get starts a new flight.
func (c *Cell[T]) Get(ctx context.Context, init func(context.Context) (T, error)) (T, error) {
	if v, ok := c.load(); ok {
		return v, nil
	}

	ch := c.group.DoChan("", func() (any, error) {
		if v, ok := c.load(); ok {
			return v, nil
		}
		v, err := init(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.val, c.done = v, true
		c.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Peek returns the stored value without initializing.
func (c *Cell[T]) Peek() (T, bool) {
	return c.load()
}

func (c *Cell[T]) load() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.done
}

// Map is a set of cells keyed by string, e.g. one per tool name.
type Map[V any] struct {
	mu    sync.Mutex
	cells map[string]*Cell[V]
}

// Get returns the value for key, initializing it with init on first use.
func (m *Map[V]) Get(ctx context.Context, key string, init func(context.Context) (V, error)) (V, error) {
	return m.cell(key).Get(ctx, init)
}

func (m *Map[V]) cell(key string) *Cell[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cells == nil {
		m.cells = make(map[string]*Cell[V])
	}
	c, ok := m.cells[key]
	if !ok {
		c = &Cell[V]{}
		m.cells[key] = c
	}
	return c
}
