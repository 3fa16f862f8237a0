package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/groom/internal/fingerprint"
	"github.com/roach88/groom/internal/sandbox"
	"github.com/roach88/groom/internal/store"
)

// Tool is one cacheable external tool producing results of type R.
type Tool[R any] struct {
	// Name is the executable name, also used for metrics and logs.
	Name    string
	Table   store.Table
	Profile sandbox.Profile

	// Key returns the configuration part of the cache key: tool version
	// first, then configuration fingerprints, in Table.Keys order. The source
	// fingerprint is appended by Apply.
	Key func(ctx context.Context, env *Env) ([]string, error)
	// Args builds the tool's arguments for input named filename.
	Args func(ctx context.Context, env *Env, filename string) ([]string, error)
	// Decode turns the tool's stdout into a result.
	Decode func(stdout []byte) (R, error)
	// Hit rebuilds the result of a cache hit from the input and stored payload.
	Hit func(input, payload []byte) (R, error)
	// Encode serializes a result as the stored payload. Nil for tools whose
	// table has no payload column.
	Encode func(R) ([]byte, error)
	// Settled, if set, returns the content whose fingerprint is recorded on a
	// miss in place of the input's. Formatters record their output, so a hit
	// always means the content is already formatted.
	Settled func(R) []byte
}

// Outcome is the result of Apply.
type Outcome[R any] struct {
	Result R
	Cached bool
}

// Apply returns the tool's result for input, whose fingerprint is sum.
// filename is passed to the tool as a hint and never opened.
func (t *Tool[R]) Apply(ctx context.Context, env *Env, filename string, input []byte, sum fingerprint.Sum) (Outcome[R], error) {
	ctx, span := tracer.Start(ctx, t.Name+".apply", trace.WithAttributes(
		attribute.String("file", filename),
		attribute.String("source_hash", sum.String()),
	))
	defer span.End()

	var out Outcome[R]
	cfgKey, err := t.Key(ctx, env)
	if err != nil {
		return out, err
	}
	key := append(append([]string{}, cfgKey...), sum.String())

	payload, found, err := env.Store.Lookup(ctx, t.Table, key)
	if err != nil {
		return out, err
	}
	env.Metrics.CacheLookup(t.Name, found)
	span.SetAttributes(attribute.Bool("cache.hit", found))

	if found {
		env.Logger.Debug("cache hit", "tool", t.Name, "file", filename)
		r, err := t.Hit(input, payload)
		if err != nil {
			return out, fmt.Errorf("%s: cached result for %s: %w", t.Name, filename, err)
		}
		return Outcome[R]{Result: r, Cached: true}, nil
	}

	env.Logger.Debug("cache miss", "tool", t.Name, "file", filename)
	bin, err := env.Tools.Locate(ctx, t.Name)
	if err != nil {
		return out, err
	}
	args, err := t.Args(ctx, env, filename)
	if err != nil {
		return out, err
	}
	stdout, err := env.Runner.Run(ctx, t.Profile, bin, args, input)
	if err != nil {
		return out, err
	}
	r, err := t.Decode(stdout)
	if err != nil {
		return out, fmt.Errorf("%s output for %s: %w", t.Name, filename, err)
	}

	var stored []byte
	if t.Encode != nil {
		if stored, err = t.Encode(r); err != nil {
			return out, fmt.Errorf("%s: encode result: %w", t.Name, err)
		}
	}
	if t.Settled != nil {
		key[len(key)-1] = fingerprint.Bytes(t.Settled(r)).String()
	}
	if err := env.Store.Record(ctx, t.Table, key, stored); err != nil {
		return out, err
	}

	return Outcome[R]{Result: r}, nil
}
