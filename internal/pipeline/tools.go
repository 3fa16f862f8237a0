package pipeline

import (
	"context"

	"github.com/roach88/groom/internal/diag"
	"github.com/roach88/groom/internal/sandbox"
	"github.com/roach88/groom/internal/store"
)

// StdinName is the filename tools see for input read from standard input.
const StdinName = "<stdin>"

var (
	fourmoluTable = store.Table{
		Name: "fourmolu",
		Keys: []string{"version", "config_hash", "extensions_hash", "source_hash"},
	}
	nixfmtTable = store.Table{
		Name: "nixfmt",
		Keys: []string{"version", "source_hash"},
	}
	hlintTable = store.Table{
		Name:    "hlint",
		Keys:    []string{"version", "configs_hash", "source_hash"},
		Payload: "hints",
	}
)

var (
	fourmoluProfile = sandbox.Profile{Name: "fourmolu", Strict: true}
	nixfmtProfile   = sandbox.Profile{Name: "nixfmt", Strict: true}
	// hlint reads its data files from wherever it was installed.
	hlintProfile = sandbox.Profile{Name: "hlint"}
)

// Tables lists the cache tables of every tool kind.
func Tables() []store.Table {
	return []store.Table{fourmoluTable, nixfmtTable, hlintTable}
}

// Fourmolu formats Haskell sources.
func Fourmolu() *Tool[[]byte] {
	return &Tool[[]byte]{
		Name:    "fourmolu",
		Table:   fourmoluTable,
		Profile: fourmoluProfile,
		Key: func(ctx context.Context, env *Env) ([]string, error) {
			v, err := env.Tools.Version(ctx, "fourmolu", fourmoluProfile)
			if err != nil {
				return nil, err
			}
			cfg, err := env.Tools.FourmoluConfig(ctx)
			if err != nil {
				return nil, err
			}
			exts, err := env.Tools.Extensions(ctx)
			if err != nil {
				return nil, err
			}
			return []string{v, cfg.Sum.String(), exts.Sum.String()}, nil
		},
		Args: func(ctx context.Context, env *Env, filename string) ([]string, error) {
			cfg, err := env.Tools.FourmoluConfig(ctx)
			if err != nil {
				return nil, err
			}
			exts, err := env.Tools.Extensions(ctx)
			if err != nil {
				return nil, err
			}
			args := []string{
				"--config=" + cfg.Path,
				"--no-cabal",
				"--stdin-input-file=" + filename,
				"--mode=stdout",
				"--source-type=module",
				"--unsafe",
				"--quiet",
			}
			for _, ext := range exts.Names {
				args = append(args, "--ghc-opt=-X"+ext)
			}
			return args, nil
		},
		Decode:  decodeSource,
		Hit:     hitSource,
		Settled: settledSource,
	}
}

// Nixfmt formats Nix expressions.
func Nixfmt() *Tool[[]byte] {
	return &Tool[[]byte]{
		Name:    "nixfmt",
		Table:   nixfmtTable,
		Profile: nixfmtProfile,
		Key: func(ctx context.Context, env *Env) ([]string, error) {
			v, err := env.Tools.Version(ctx, "nixfmt", nixfmtProfile)
			if err != nil {
				return nil, err
			}
			return []string{v}, nil
		},
		Args: func(_ context.Context, _ *Env, filename string) ([]string, error) {
			return []string{"--filename=" + filename, "-"}, nil
		},
		Decode:  decodeSource,
		Hit:     hitSource,
		Settled: settledSource,
	}
}

// Hlint lints Haskell sources.
func Hlint() *Tool[[]diag.Hint] {
	return &Tool[[]diag.Hint]{
		Name:    "hlint",
		Table:   hlintTable,
		Profile: hlintProfile,
		Key: func(ctx context.Context, env *Env) ([]string, error) {
			v, err := env.Tools.Version(ctx, "hlint", hlintProfile)
			if err != nil {
				return nil, err
			}
			rules, err := env.Tools.HlintRules(ctx)
			if err != nil {
				return nil, err
			}
			return []string{v, rules.Sum.String()}, nil
		},
		Args: func(ctx context.Context, env *Env, _ string) ([]string, error) {
			rules, err := env.Tools.HlintRules(ctx)
			if err != nil {
				return nil, err
			}
			args := []string{"--json", "--no-exit-code", "-"}
			for _, p := range rules.Paths {
				args = append(args, "--hint="+p)
			}
			return args, nil
		},
		Decode: diag.Parse,
		Hit: func(_, payload []byte) ([]diag.Hint, error) {
			return diag.Parse(payload)
		},
		Encode: diag.Encode,
	}
}

func decodeSource(stdout []byte) ([]byte, error) { return stdout, nil }

// A formatter hit means the input is its own formatted form.
func hitSource(input, _ []byte) ([]byte, error) { return input, nil }

func settledSource(out []byte) []byte { return out }
