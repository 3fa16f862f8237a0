package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/diag"
	"github.com/roach88/groom/internal/fingerprint"
)

// Linter reports diagnostics for files of one language.
type Linter struct {
	Language string
	Ext      string
	Roots    func(*config.Config) []string
	Tool     *Tool[[]diag.Hint]
}

// HaskellLinter lints .hs files with hlint.
func HaskellLinter() *Linter {
	return &Linter{
		Language: "Haskell",
		Ext:      ".hs",
		Roots:    func(c *config.Config) []string { return c.Hlint.Roots },
		Tool:     Hlint(),
	}
}

// Linters lists every linter kind.
func Linters() []*Linter {
	return []*Linter{HaskellLinter()}
}

// LintFile prints the diagnostics for path and reports whether the tool ran.
// Cached diagnostics are attributed to path, whatever file they were
// recorded for.
func (l *Linter) LintFile(ctx context.Context, env *Env, path string) (bool, error) {
	ctx, span := tracer.Start(ctx, "lint.file")
	defer span.End()
	span.SetAttributes(attribute.String("file", path), attribute.String("tool", l.Tool.Name))

	input, sum, err := readSource(ctx, env.Permits, path)
	if err != nil {
		return false, err
	}
	out, err := l.Tool.Apply(ctx, env, path, input, sum)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Int("hints", len(out.Result)))
	if err := env.Report.Hints(diag.WithFile(out.Result, path)); err != nil {
		return false, err
	}
	return !out.Cached, nil
}

// LintFiles lints paths concurrently. The first failure cancels the remaining
// files and is returned.
func (l *Linter) LintFiles(ctx context.Context, env *Env, paths []string) (Tally, error) {
	var fresh atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			ran, err := l.LintFile(ctx, env, p)
			if err != nil {
				return fmt.Errorf("lint %s: %w", p, err)
			}
			if ran {
				fresh.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return Tally{Changed: int(fresh.Load()), Total: len(paths)}, err
}

// LintStream lints r and prints its diagnostics.
func (l *Linter) LintStream(ctx context.Context, env *Env, r io.Reader) error {
	input, sum, err := fingerprint.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	out, err := l.Tool.Apply(ctx, env, StdinName, input, sum)
	if err != nil {
		return err
	}
	return env.Report.Hints(diag.WithFile(out.Result, StdinName))
}

// Run lints paths, or the changed files under the configured roots when
// paths is empty, and prints a summary.
func (l *Linter) Run(ctx context.Context, env *Env, paths []string) (Tally, error) {
	if len(paths) == 0 {
		var err error
		if paths, err = env.Discover(ctx, l.Ext, l.Roots(env.Config)); err != nil {
			return Tally{}, err
		}
	}
	t, err := l.LintFiles(ctx, env, paths)
	if err != nil {
		return t, err
	}
	env.Report.Summary("Linted", l.Language, t.Changed, t.Total)
	return t, nil
}
