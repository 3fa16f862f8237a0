package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runnable is one tool kind's pipeline over the changed files.
type Runnable interface {
	Run(ctx context.Context, env *Env, paths []string) (Tally, error)
}

// RunAll runs every kind concurrently over its discovered files. The first
// failure cancels the others.
func RunAll[K Runnable](ctx context.Context, env *Env, kinds []K) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, k := range kinds {
		g.Go(func() error {
			_, err := k.Run(ctx, env, nil)
			return err
		})
	}
	return g.Wait()
}
