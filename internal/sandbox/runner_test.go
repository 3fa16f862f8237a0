//go:build unix

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/groom/internal/permits"
)

var testProfile = Profile{Name: "faketool", Strict: true}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRunner(t *testing.T, pool *permits.Pool) *Runner {
	t.Helper()
	if pool == nil {
		pool = permits.New(4, 2)
	}
	r, err := NewRunner(pool, nil)
	require.NoError(t, err)
	r.Enforce = false
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunFeedsStdin(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "echo", `while IFS= read -r line; do printf '%s\n' "$line"; done`)

	out, err := r.Run(context.Background(), testProfile, tool, nil, []byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(out))
}

func TestRunPassesArgs(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "args", `for a in "$@"; do printf '%s\n' "$a"; done`)

	out, err := r.Run(context.Background(), testProfile, tool, []string{"--filename=a b.nix", "-"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "--filename=a b.nix\n-\n", string(out))
}

func TestRunExitCode(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "fail", `echo "parse error" >&2; exit 3`)

	_, err := r.Run(context.Background(), testProfile, tool, nil, nil)
	var ee *ExitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, Exited, ee.Kind)
	assert.Equal(t, 3, ee.Code)
	assert.Equal(t, "parse error\n", string(ee.Stderr))
	assert.Contains(t, ee.Error(), "`faketool` exited with code 3")
}

func TestRunSignal(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "die", `kill -9 $$`)

	_, err := r.Run(context.Background(), testProfile, tool, nil, nil)
	var ee *ExitError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, Signaled, ee.Kind)
	assert.Equal(t, 9, ee.Signal)
	assert.Contains(t, ee.Error(), "SIGKILL")
}

func TestRunClearsEnvironment(t *testing.T) {
	t.Setenv("GROOM_LEAK_CHECK", "leaked")
	r := newTestRunner(t, nil)
	tool := writeScript(t, "env", `printf '%s:%s' "${GROOM_LEAK_CHECK-unset}" "${HOME-unset}"`)

	out, err := r.Run(context.Background(), testProfile, tool, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "unset:unset", string(out))
}

func TestRunPinsWorkingDirectory(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "pwd", `pwd -P`)

	out, err := r.Run(context.Background(), testProfile, tool, nil, nil)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(r.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(string(out)))

	info, err := os.Stat(r.WorkDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o555), info.Mode().Perm())
}

func TestRunCancelKillsChild(t *testing.T) {
	r := newTestRunner(t, nil)
	tool := writeScript(t, "spin", `while :; do :; done`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, testProfile, tool, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunReleasesPermitsOnFailure(t *testing.T) {
	pool := permits.New(1, 1)
	r := newTestRunner(t, pool)
	tool := writeScript(t, "fail", `exit 1`)

	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), testProfile, tool, nil, nil)
		require.Error(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := pool.AcquireFile(ctx)
	require.NoError(t, err)
	release()
	release, err = pool.AcquireProcess(ctx)
	require.NoError(t, err)
	release()
}

func TestRunMissingProgram(t *testing.T) {
	r := newTestRunner(t, nil)
	_, err := r.Run(context.Background(), testProfile, filepath.Join(t.TempDir(), "nope"), nil, nil)
	require.Error(t, err)
	var ee *ExitError
	assert.False(t, errors.As(err, &ee))
}

func TestRunEnforceWrapsInSandboxExec(t *testing.T) {
	r := newTestRunner(t, nil)
	r.Enforce = true
	r.SandboxExec = writeScript(t, "sandbox-exec", `for a in "$@"; do printf '[%s]' "$a"; done`)
	r.Private = []string{"/Users"}

	out, err := r.Run(context.Background(), testProfile, "/nix/store/abc-fourmolu/bin/fourmolu", []string{"--version"}, nil)
	require.NoError(t, err)

	got := string(out)
	assert.True(t, strings.HasPrefix(got, "[-p][(version 1)\n(deny default)\n"), got)
	assert.Contains(t, got, `(deny file-read* (subpath "/Users"))`)
	assert.True(t, strings.HasSuffix(got, "[--][/nix/store/abc-fourmolu/bin/fourmolu][--version]"), got)
}

type recordingObserver struct {
	tools []string
	errs  []error
}

func (o *recordingObserver) ObserveRun(tool string, _ time.Duration, err error) {
	o.tools = append(o.tools, tool)
	o.errs = append(o.errs, err)
}

func TestRunNotifiesObserver(t *testing.T) {
	r := newTestRunner(t, nil)
	obs := &recordingObserver{}
	r.Observer = obs

	ok := writeScript(t, "ok", `exit 0`)
	bad := writeScript(t, "bad", `exit 2`)
	_, _ = r.Run(context.Background(), testProfile, ok, nil, nil)
	_, _ = r.Run(context.Background(), testProfile, bad, nil, nil)

	assert.Equal(t, []string{"faketool", "faketool"}, obs.tools)
	assert.NoError(t, obs.errs[0])
	assert.Error(t, obs.errs[1])
}

func TestExecInheritsEnvironment(t *testing.T) {
	t.Setenv("GROOM_EXEC_CHECK", "kept")
	tool := writeScript(t, "env", `printf '%s' "$GROOM_EXEC_CHECK"`)

	out, err := Exec(context.Background(), tool)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(out))

	bad := writeScript(t, "bad", `echo "fatal: not a git repository" >&2; exit 128`)
	_, err = Exec(context.Background(), bad)
	var ee *ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 128, ee.Code)
	assert.Contains(t, string(ee.Stderr), "not a git repository")
}
