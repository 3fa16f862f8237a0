//go:build unix

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// repo is a scratch repository with fake tools in its override directory.
// Every fake records one line per real invocation in <tools>/calls and
// reports the version stored in <tools>/version.
type repo struct {
	root   string
	tools  string
	dbPath string
}

func newRepo(t *testing.T) *repo {
	t.Helper()
	r := &repo{
		root:   t.TempDir(),
		dbPath: filepath.Join(t.TempDir(), "cache.sqlite"),
	}
	r.tools = filepath.Join(r.root, ".bin")
	require.NoError(t, os.MkdirAll(r.tools, 0o755))
	r.setVersion(t, "1.0.0")
	// Keep the host's real tools out of the search.
	t.Setenv("PATH", t.TempDir())
	return r
}

func (r *repo) setVersion(t *testing.T, v string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(r.tools, "version"), []byte(v+"\n"), 0o644))
}

// tool installs a fake named name whose body runs after the --version and
// call-logging preamble. Child processes get an empty environment, so bodies
// stick to shell builtins.
func (r *repo) tool(t *testing.T, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = --version ]; then read -r v < '" + filepath.Join(r.tools, "version") + "'; printf '%s\\n' \"$v\"; exit 0; fi\n" +
		"printf '%s\\n' \"$*\" >> '" + filepath.Join(r.tools, "calls") + "'\n" +
		body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(r.tools, name), []byte(script), 0o755))
}

// trimmer is a fake formatter that strips surrounding blanks from each line.
const trimmer = `while read -r line; do printf '%s\n' "$line"; done`

func (r *repo) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.tools, "calls"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func (r *repo) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(r.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func read(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

// session is one groom run against repo, with captured output.
type session struct {
	*Env
	out *bytes.Buffer
	err *bytes.Buffer
}

func (r *repo) open(t *testing.T) *session {
	t.Helper()
	var out, errw bytes.Buffer
	env, err := NewEnv(context.Background(), EnvOptions{
		Root:           r.root,
		DatabasePath:   r.dbPath,
		Identity:       "test-identity",
		DisableSandbox: true,
		Reporter:       NewReporter(&out, &errw, false),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return &session{Env: env, out: &out, err: &errw}
}
