// Package gitutil discovers the repository root and the files changed on the
// current branch.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/groom/internal/sandbox"
)

// Root returns the top-level directory of the work tree containing dir.
// An empty dir means the current directory.
func Root(ctx context.Context, git, dir string) (string, error) {
	args := []string{"rev-parse", "--show-toplevel"}
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	out, err := sandbox.Exec(ctx, git, args...)
	if err != nil {
		return "", fmt.Errorf("find repository root: %w", err)
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return "", fmt.Errorf("find repository root: git printed nothing")
	}
	return filepath.Clean(root), nil
}

// TempDirPrefix names the private directories groom creates beside a file
// while replacing it. ChangedFiles skips anything inside one, since a killed
// run can leave such a directory behind in the work tree.
const TempDirPrefix = ".groom-"

// ChangedFiles lists files under the given pathspecs that differ from the
// merge base with baseRef, plus untracked files not ignored by git. Deleted
// and type-changed files are excluded. Paths are NFC normalized and absolute.
func ChangedFiles(ctx context.Context, git, root, baseRef string, pathspecs []string) ([]string, error) {
	prefix := []string{"-C", root, "-c", "core.quotePath=false"}

	var tracked, untracked []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		args := append(append([]string{}, prefix...),
			"diff", "--diff-filter=dt", "--name-only", "--merge-base", baseRef, "--")
		out, err := sandbox.Exec(gctx, git, append(args, pathspecs...)...)
		if err != nil {
			return fmt.Errorf("list changed files: %w", err)
		}
		tracked = out
		return nil
	})
	g.Go(func() error {
		args := append(append([]string{}, prefix...),
			"ls-files", "--others", "--exclude-standard", "--")
		out, err := sandbox.Exec(gctx, git, append(args, pathspecs...)...)
		if err != nil {
			return fmt.Errorf("list untracked files: %w", err)
		}
		untracked = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []string
	for _, out := range [][]byte{tracked, untracked} {
		for _, line := range bytes.Split(out, []byte("\n")) {
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) == 0 {
				continue
			}
			rel := norm.NFC.String(string(line))
			if inTempDir(rel) {
				continue
			}
			p := filepath.Join(root, rel)
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}
	return files, nil
}

func inTempDir(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, TempDirPrefix) {
			return true
		}
	}
	return false
}

// FilterExt keeps paths whose extension is ext (".hs", ".nix").
func FilterExt(paths []string, ext string) []string {
	var out []string
	for _, p := range paths {
		if filepath.Ext(p) == ext {
			out = append(out, p)
		}
	}
	return out
}
