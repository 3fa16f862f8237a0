package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/fingerprint"
)

// Snapshot is a configuration file copied into the scratch directory, with
// the fingerprint of its contents.
type Snapshot struct {
	Path string
	Sum  fingerprint.Sum
}

// RuleSet is an ordered set of snapshots and their combined fingerprint.
type RuleSet struct {
	Paths []string
	Sum   fingerprint.Sum
}

// Extensions is the default language-extension list and its fingerprint.
type Extensions struct {
	Names []string
	Sum   fingerprint.Sum
}

// FourmoluConfig snapshots the Haskell formatter's configuration file.
func (t *Toolchain) FourmoluConfig(ctx context.Context) (Snapshot, error) {
	return t.fourmolu.Get(ctx, func(ctx context.Context) (Snapshot, error) {
		root, err := t.Root(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		src := config.Resolve(root, t.opts.FourmoluConfig)
		snap, err := SnapshotFile(src, filepath.Join(t.scratch, "fourmolu", filepath.Base(src)))
		if err != nil {
			return Snapshot{}, fmt.Errorf("fourmolu config: %w", err)
		}
		return snap, nil
	})
}

// HlintRules snapshots the linter's root configuration and rule files.
func (t *Toolchain) HlintRules(ctx context.Context) (RuleSet, error) {
	return t.hlintRules.Get(ctx, func(ctx context.Context) (RuleSet, error) {
		root, err := t.Root(ctx)
		if err != nil {
			return RuleSet{}, err
		}
		rules, err := SnapshotRules(ctx,
			config.Resolve(root, t.opts.HlintRootConfig),
			config.Resolve(root, t.opts.HlintRulesDir),
			".yaml",
			filepath.Join(t.scratch, "hlint"),
		)
		if err != nil {
			return RuleSet{}, fmt.Errorf("hlint rules: %w", err)
		}
		return rules, nil
	})
}

// Extensions reads the default-extensions list passed to the Haskell formatter.
func (t *Toolchain) Extensions(ctx context.Context) (Extensions, error) {
	return t.extensions.Get(ctx, func(ctx context.Context) (Extensions, error) {
		root, err := t.Root(ctx)
		if err != nil {
			return Extensions{}, err
		}
		return LoadExtensions(config.Resolve(root, t.opts.ExtensionsFile))
	})
}

// SnapshotFile copies src to dst and fingerprints the bytes in the same pass.
func SnapshotFile(src, dst string) (Snapshot, error) {
	in, err := os.Open(src)
	if err != nil {
		return Snapshot{}, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Snapshot{}, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return Snapshot{}, err
	}

	hr := fingerprint.NewReader(in)
	if _, err := io.Copy(out, hr); err != nil {
		out.Close()
		return Snapshot{}, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: dst, Sum: hr.Sum()}, nil
}

// SnapshotRules snapshots the optional rootFile followed by every regular file
// in dir with extension ext, in directory order. The combined fingerprint
// folds the per-file fingerprints in that same order. A missing rootFile or
// dir contributes nothing.
func SnapshotRules(ctx context.Context, rootFile, dir, ext, dst string) (RuleSet, error) {
	var sources []string
	if rootFile != "" {
		info, err := os.Stat(rootFile)
		switch {
		case err == nil && info.Mode().IsRegular():
			sources = append(sources, rootFile)
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return RuleSet{}, err
		}
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return RuleSet{}, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ext {
				continue
			}
			sources = append(sources, filepath.Join(dir, e.Name()))
		}
	}

	snaps := make([]Snapshot, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, src := range sources {
		// Index prefix keeps same-named files from different sources apart.
		target := filepath.Join(dst, fmt.Sprintf("%03d-%s", i, filepath.Base(src)))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := SnapshotFile(src, target)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RuleSet{}, err
	}

	c := fingerprint.NewCombiner()
	rs := RuleSet{Paths: make([]string, len(snaps))}
	for i, s := range snaps {
		c.Add(s.Sum)
		rs.Paths[i] = s.Path
	}
	rs.Sum = c.Sum()
	return rs, nil
}

// LoadExtensions parses the default-extensions sequence from an hpack
// defaults file. A missing file yields an empty list.
func LoadExtensions(path string) (Extensions, error) {
	if path == "" {
		return Extensions{Sum: fingerprint.NewCombiner().Sum()}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Extensions{Sum: fingerprint.NewCombiner().Sum()}, nil
	}
	if err != nil {
		return Extensions{}, err
	}

	var doc struct {
		DefaultExtensions *[]string `yaml:"default-extensions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Extensions{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.DefaultExtensions == nil {
		return Extensions{}, fmt.Errorf("parse %s: missing `default-extensions` key", path)
	}

	c := fingerprint.NewCombiner()
	for _, name := range *doc.DefaultExtensions {
		c.AddString(name)
	}
	return Extensions{Names: *doc.DefaultExtensions, Sum: c.Sum()}, nil
}
