package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/fingerprint"
)

// Tally counts files touched by a batch.
type Tally struct {
	// Changed counts rewritten files for formatters and fresh tool runs for
	// linters.
	Changed int
	Total   int
}

// Formatter rewrites files of one language in place.
type Formatter struct {
	Language string
	Ext      string
	Roots    func(*config.Config) []string
	Tool     *Tool[[]byte]
}

// HaskellFormatter formats .hs files with fourmolu.
func HaskellFormatter() *Formatter {
	return &Formatter{
		Language: "Haskell",
		Ext:      ".hs",
		Roots:    func(c *config.Config) []string { return c.Fourmolu.Roots },
		Tool:     Fourmolu(),
	}
}

// NixFormatter formats .nix files with nixfmt.
func NixFormatter() *Formatter {
	return &Formatter{
		Language: "Nix",
		Ext:      ".nix",
		Roots:    func(c *config.Config) []string { return c.Nixfmt.Roots },
		Tool:     Nixfmt(),
	}
}

// Formatters lists every formatter kind.
func Formatters() []*Formatter {
	return []*Formatter{HaskellFormatter(), NixFormatter()}
}

// FormatFile formats path in place and reports whether it was rewritten.
func (f *Formatter) FormatFile(ctx context.Context, env *Env, path string) (bool, error) {
	ctx, span := tracer.Start(ctx, "format.file")
	defer span.End()
	span.SetAttributes(attribute.String("file", path), attribute.String("tool", f.Tool.Name))

	input, sum, err := readSource(ctx, env.Permits, path)
	if err != nil {
		return false, err
	}
	out, err := f.Tool.Apply(ctx, env, path, input, sum)
	if err != nil {
		return false, err
	}
	if out.Cached || bytes.Equal(out.Result, input) {
		return false, nil
	}
	if err := writeAtomic(ctx, env.Permits, path, out.Result); err != nil {
		return false, err
	}
	env.Metrics.FileWritten(f.Tool.Name)
	env.Logger.Debug("formatted", "tool", f.Tool.Name, "file", path)
	return true, nil
}

// FormatFiles formats paths concurrently. The first failure cancels the
// remaining files and is returned.
func (f *Formatter) FormatFiles(ctx context.Context, env *Env, paths []string) (Tally, error) {
	var changed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			ok, err := f.FormatFile(ctx, env, p)
			if err != nil {
				return fmt.Errorf("format %s: %w", p, err)
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return Tally{Changed: int(changed.Load()), Total: len(paths)}, err
}

// FormatStream formats r and writes the result to the reporter.
func (f *Formatter) FormatStream(ctx context.Context, env *Env, r io.Reader) error {
	input, sum, err := fingerprint.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	out, err := f.Tool.Apply(ctx, env, StdinName, input, sum)
	if err != nil {
		return err
	}
	return env.Report.Stream(out.Result)
}

// Run formats paths, or the changed files under the configured roots when
// paths is empty, and prints a summary.
func (f *Formatter) Run(ctx context.Context, env *Env, paths []string) (Tally, error) {
	if len(paths) == 0 {
		var err error
		if paths, err = env.Discover(ctx, f.Ext, f.Roots(env.Config)); err != nil {
			return Tally{}, err
		}
	}
	t, err := f.FormatFiles(ctx, env, paths)
	if err != nil {
		return t, err
	}
	env.Report.Summary("Formatted", f.Language, t.Changed, t.Total)
	return t, nil
}
