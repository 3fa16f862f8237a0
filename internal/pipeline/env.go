// Package pipeline runs formatters and linters over source files through the
// persistent cache.
//
// Each tool kind is a Tool: a cache table, a sandbox profile, a key builder
// and an output codec. Tool.Apply looks the input up, and on a miss runs the
// tool in the sandbox and records the result. Formatter and Linter add the
// per-file plumbing (streaming read and hash, atomic write-back, diagnostic
// output) and the concurrent batch drivers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/gitutil"
	"github.com/roach88/groom/internal/permits"
	"github.com/roach88/groom/internal/sandbox"
	"github.com/roach88/groom/internal/store"
	"github.com/roach88/groom/internal/telemetry"
	"github.com/roach88/groom/internal/toolchain"
	"github.com/roach88/groom/internal/version"
)

var tracer = otel.Tracer("github.com/roach88/groom/internal/pipeline")

// Env is the shared state of one groom run. Every task receives it
// explicitly; there is no process-global context.
type Env struct {
	Root    string
	Config  *config.Config
	Store   *store.Store
	Permits *permits.Pool
	Runner  *sandbox.Runner
	Tools   *toolchain.Toolchain
	Metrics *telemetry.Metrics
	Report  *Reporter
	Logger  *slog.Logger
}

// EnvOptions configure NewEnv. Zero values select the defaults.
type EnvOptions struct {
	// Root is the repository root. Discovered with git when empty.
	Root string
	// DatabasePath defaults to cache.sqlite under the user cache directory.
	DatabasePath string
	// Identity defaults to version.BinaryID().
	Identity string
	// DisableSandbox runs tools without sandbox-exec even on macOS.
	DisableSandbox bool

	Metrics  *telemetry.Metrics
	Reporter *Reporter
	Logger   *slog.Logger
}

// NewEnv resolves the repository, loads its configuration and opens the cache.
func NewEnv(ctx context.Context, opts EnvOptions) (env *Env, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, err := toolchain.DiscoverRoot(ctx, opts.Root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	env = &Env{
		Root:    root,
		Config:  cfg,
		Permits: permits.New(cfg.Limits.OpenFiles, cfg.Limits.Processes),
		Metrics: opts.Metrics,
		Report:  opts.Reporter,
		Logger:  logger.With("component", "pipeline"),
	}
	if env.Report == nil {
		env.Report = NewReporter(nil, nil, false)
	}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	env.Runner, err = sandbox.NewRunner(env.Permits, logger.With("component", "sandbox"))
	if err != nil {
		return nil, err
	}
	if opts.DisableSandbox {
		env.Runner.Enforce = false
	}
	if opts.Metrics != nil {
		env.Runner.Observer = opts.Metrics
	}

	topts := toolchain.OptionsFromConfig(root, cfg)
	topts.Logger = logger
	env.Tools, err = toolchain.New(env.Runner, topts)
	if err != nil {
		return nil, err
	}
	env.Runner.Readable = []string{env.Tools.Scratch()}

	dbPath := opts.DatabasePath
	if dbPath == "" {
		if dbPath, err = config.DatabasePath(); err != nil {
			return nil, err
		}
	}
	identity := opts.Identity
	if identity == "" {
		identity = version.BinaryID()
	}
	env.Store, err = store.Open(dbPath, identity, Tables()...)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if env.Store.Fresh() {
		logger.Info("cache initialized", "path", dbPath, "identity", identity)
	}

	return env, nil
}

// Close releases the store, the scratch directory and the sandbox directory.
func (e *Env) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if e.Tools != nil {
		errs = append(errs, e.Tools.Close())
	}
	if e.Runner != nil {
		errs = append(errs, e.Runner.Close())
	}
	return errors.Join(errs...)
}

// Discover lists changed files with extension ext under roots.
func (e *Env) Discover(ctx context.Context, ext string, roots []string) ([]string, error) {
	git, err := e.Tools.Locate(ctx, "git")
	if err != nil {
		return nil, err
	}
	files, err := gitutil.ChangedFiles(ctx, git, e.Root, e.Config.BaseRef, roots)
	if err != nil {
		return nil, err
	}
	return gitutil.FilterExt(files, ext), nil
}
