// Package sandbox runs external tools under a restricted process environment.
//
// Every run draws one file permit and one process permit from a shared pool,
// clears the environment, pins the working directory to an empty read-only
// directory and, on macOS, wraps the tool in sandbox-exec with a per-tool
// policy. Failures are reported as *ExitError with the captured stderr.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/groom/internal/permits"
)

// DefaultSandboxExec is the macOS sandbox launcher.
const DefaultSandboxExec = "/usr/bin/sandbox-exec"

var tracer = otel.Tracer("github.com/roach88/groom/internal/sandbox")

// Observer receives one call per finished tool run.
type Observer interface {
	ObserveRun(tool string, elapsed time.Duration, err error)
}

// Runner spawns sandboxed tool processes.
type Runner struct {
	Permits *permits.Pool
	// WorkDir is the empty, non-writable directory tools run in.
	WorkDir string
	// Enforce wraps every run in SandboxExec. Defaults to true on macOS.
	Enforce     bool
	SandboxExec string
	// Private paths are unreadable to tools; Readable paths are carved back out.
	Private  []string
	Readable []string
	Observer Observer
	Logger   *slog.Logger

	ownsWorkDir bool
	noticeOnce  sync.Once
}

// NewRunner creates a runner with its own empty working directory and the
// user's home directory marked private. Close removes the directory.
func NewRunner(pool *permits.Pool, logger *slog.Logger) (*Runner, error) {
	dir, err := os.MkdirTemp("", "groom-empty-")
	if err != nil {
		return nil, fmt.Errorf("create sandbox work dir: %w", err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("create sandbox work dir: %w", err)
	}

	r := &Runner{
		Permits:     pool,
		WorkDir:     dir,
		Enforce:     runtime.GOOS == "darwin",
		SandboxExec: DefaultSandboxExec,
		Logger:      logger,
		ownsWorkDir: true,
	}
	if home, err := os.UserHomeDir(); err == nil {
		r.Private = []string{home}
	}
	return r, nil
}

// Close removes the working directory created by NewRunner.
func (r *Runner) Close() error {
	if r == nil || !r.ownsWorkDir {
		return nil
	}
	return os.Remove(r.WorkDir)
}

// Run executes program with args under profile, feeding input on stdin and
// returning stdout. Cancelling ctx kills the process.
func (r *Runner) Run(ctx context.Context, profile Profile, program string, args []string, input []byte) (out []byte, err error) {
	releaseFile, err := r.Permits.AcquireFile(ctx)
	if err != nil {
		return nil, err
	}
	defer releaseFile()

	releaseProc, err := r.Permits.AcquireProcess(ctx)
	if err != nil {
		return nil, err
	}
	defer releaseProc()

	ctx, span := tracer.Start(ctx, "sandbox.run", trace.WithAttributes(
		attribute.String("tool", profile.Name),
		attribute.String("program", program),
		attribute.Int("input.bytes", len(input)),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if r.Observer != nil {
			r.Observer.ObserveRun(profile.Name, time.Since(start), err)
		}
	}()

	name, argv := program, args
	if r.Enforce {
		name = r.SandboxExec
		argv = append([]string{"-p", profile.Render(program, r.Private, r.Readable), "--", program}, args...)
	} else {
		r.noticeOnce.Do(func() {
			r.logger().Debug("sandbox policy not enforced on this platform", "os", runtime.GOOS)
		})
	}

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Env = []string{}
	cmd.Dir = r.WorkDir
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = 5 * time.Second
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger().Debug("spawning tool", "tool", profile.Name, "program", program, "args", args)
	runErr := cmd.Run()
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", profile.Name, ctxErr)
		}
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			return nil, classify(toolName(profile, program), ee.ProcessState, stderr.Bytes())
		}
		return nil, fmt.Errorf("spawn %s: %w", program, runErr)
	}
	return stdout.Bytes(), nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func toolName(p Profile, program string) string {
	if p.Name != "" {
		return p.Name
	}
	return filepath.Base(program)
}

// Kind classifies how a tool process failed.
type Kind int

const (
	Unknown Kind = iota
	Exited
	Signaled
)

// ExitError reports a tool process that did not exit successfully.
type ExitError struct {
	Tool   string
	Kind   Kind
	Code   int
	Signal int
	Stderr []byte
}

func (e *ExitError) Error() string {
	switch e.Kind {
	case Exited:
		return fmt.Sprintf("`%s` exited with code %d:\n%s", e.Tool, e.Code, e.Stderr)
	case Signaled:
		return fmt.Sprintf("`%s` was terminated by signal %d (%s)", e.Tool, e.Signal, signalName(e.Signal))
	default:
		return fmt.Sprintf("`%s` died of unknown causes", e.Tool)
	}
}

func classify(tool string, state *os.ProcessState, stderr []byte) *ExitError {
	e := &ExitError{Tool: tool, Stderr: bytes.Clone(stderr)}
	if state == nil {
		return e
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	switch {
	case ok && ws.Exited():
		e.Kind = Exited
		e.Code = ws.ExitStatus()
	case ok && ws.Signaled():
		e.Kind = Signaled
		e.Signal = int(ws.Signal())
	}
	return e
}

// Exec runs program with the caller's environment and working directory and
// returns its stdout. It is meant for trusted helpers such as git.
func Exec(ctx context.Context, program string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ctx.Err() == nil {
			return nil, classify(filepath.Base(program), ee.ProcessState, stderr.Bytes())
		}
		return nil, fmt.Errorf("run %s: %w", program, err)
	}
	return stdout.Bytes(), nil
}
