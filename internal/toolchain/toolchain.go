// Package toolchain resolves the external tools groom delegates to and the
// configuration inputs that determine their output.
//
// Every value here is computed at most once per process: tool paths, tool
// versions, the repository root and configuration snapshots are memoized, and
// concurrent first callers share a single computation.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/gitutil"
	"github.com/roach88/groom/internal/memo"
	"github.com/roach88/groom/internal/sandbox"
)

// ErrToolNotFound is returned when a tool is neither on PATH nor in the
// repository's override directory.
var ErrToolNotFound = errors.New("tool not found")

// Runner runs a tool under a sandbox profile.
type Runner interface {
	Run(ctx context.Context, profile sandbox.Profile, program string, args []string, input []byte) ([]byte, error)
}

// Options locate the repository and its tool configuration. Relative paths
// are resolved against Root.
type Options struct {
	// Root is the repository root. Discovered with git when empty.
	Root string
	// BinDir is the repository-local tool override directory.
	BinDir string
	// PreferLocal searches BinDir before PATH.
	PreferLocal bool

	FourmoluConfig  string
	ExtensionsFile  string
	HlintRootConfig string
	HlintRulesDir   string

	Logger *slog.Logger
}

// OptionsFromConfig maps project configuration onto toolchain options.
func OptionsFromConfig(root string, cfg *config.Config) Options {
	return Options{
		Root:            root,
		BinDir:          cfg.BinDir,
		PreferLocal:     cfg.PreferLocalBin,
		FourmoluConfig:  cfg.Fourmolu.Config,
		ExtensionsFile:  cfg.Fourmolu.ExtensionsFile,
		HlintRootConfig: cfg.Hlint.RootConfig,
		HlintRulesDir:   cfg.Hlint.RulesDir,
	}
}

// Toolchain is the per-run tool and configuration resolver.
type Toolchain struct {
	runner  Runner
	opts    Options
	scratch string
	logger  *slog.Logger

	root       memo.Cell[string]
	paths      memo.Map[string]
	versions   memo.Map[string]
	fourmolu   memo.Cell[Snapshot]
	extensions memo.Cell[Extensions]
	hlintRules memo.Cell[RuleSet]
}

// New creates a toolchain with a private scratch directory for configuration
// snapshots. Close removes it.
func New(runner Runner, opts Options) (*Toolchain, error) {
	scratch, err := os.MkdirTemp("", "groom-scratch-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolchain{
		runner:  runner,
		opts:    opts,
		scratch: scratch,
		logger:  logger.With("component", "toolchain"),
	}, nil
}

// Close removes the scratch directory and every snapshot in it.
func (t *Toolchain) Close() error {
	if t == nil || t.scratch == "" {
		return nil
	}
	return os.RemoveAll(t.scratch)
}

// Scratch returns the directory holding configuration snapshots. Sandboxed
// tools are allowed to read it.
func (t *Toolchain) Scratch() string {
	return t.scratch
}

// Root returns the repository root.
func (t *Toolchain) Root(ctx context.Context) (string, error) {
	return t.root.Get(ctx, func(ctx context.Context) (string, error) {
		return DiscoverRoot(ctx, t.opts.Root)
	})
}

// DiscoverRoot returns dir made absolute or, when dir is empty, the root of
// the git work tree containing the current directory.
func DiscoverRoot(ctx context.Context, dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	git, err := exec.LookPath("git")
	if err != nil {
		return "", fmt.Errorf("%w: git: %v", ErrToolNotFound, err)
	}
	return gitutil.Root(ctx, git, "")
}

// Locate returns the canonical absolute path of the named tool. PATH is
// searched first and the override directory second, unless PreferLocal
// reverses the order.
func (t *Toolchain) Locate(ctx context.Context, name string) (string, error) {
	return t.paths.Get(ctx, name, func(ctx context.Context) (string, error) {
		lookups := []func(context.Context, string) (string, error){t.onPath, t.inBinDir}
		if t.opts.PreferLocal {
			lookups[0], lookups[1] = lookups[1], lookups[0]
		}
		for _, lookup := range lookups {
			p, err := lookup(ctx, name)
			if err != nil {
				return "", err
			}
			if p == "" {
				continue
			}
			resolved, err := canonical(p)
			if err != nil {
				return "", fmt.Errorf("resolve %s: %w", name, err)
			}
			t.logger.Debug("located tool", "tool", name, "path", resolved)
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	})
}

func (t *Toolchain) onPath(_ context.Context, name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", nil
	}
	return p, nil
}

func (t *Toolchain) inBinDir(ctx context.Context, name string) (string, error) {
	if t.opts.BinDir == "" {
		return "", nil
	}
	root, err := t.Root(ctx)
	if err != nil {
		return "", err
	}
	p := filepath.Join(config.Resolve(root, t.opts.BinDir), name)
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return "", nil
	}
	return p, nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Version runs `<tool> --version` under profile and returns its output with
// trailing whitespace removed.
func (t *Toolchain) Version(ctx context.Context, name string, profile sandbox.Profile) (string, error) {
	return t.versions.Get(ctx, name, func(ctx context.Context) (string, error) {
		bin, err := t.Locate(ctx, name)
		if err != nil {
			return "", err
		}
		out, err := t.runner.Run(ctx, profile, bin, []string{"--version"}, nil)
		if err != nil {
			return "", fmt.Errorf("%s version: %w", name, err)
		}
		v := strings.TrimRight(string(out), " \t\r\n")
		t.logger.Debug("tool version", "tool", name, "version", v)
		return v, nil
	})
}
