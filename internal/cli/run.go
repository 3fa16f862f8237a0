package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/groom/internal/pipeline"
	"github.com/roach88/groom/internal/telemetry"
)

// session is the per-command runtime: logger, telemetry exporters, signal
// handling and the pipeline environment.
type session struct {
	ctx    context.Context
	env    *pipeline.Env
	logger *slog.Logger

	cleanups []func() error
}

// newLogger builds the stderr logger. Every record carries the run's ID.
func newLogger(cmd *cobra.Command, verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	runID, err := uuid.NewV7()
	if err != nil {
		runID = uuid.New()
	}
	logger := slog.New(handler).With("run_id", runID.String())
	slog.SetDefault(logger)
	return logger
}

// startSession prepares everything a format or lint command needs. The
// caller must call close.
func startSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	s := &session{logger: newLogger(cmd, opts.Verbose)}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	s.cleanups = append(s.cleanups, func() error {
		signal.Stop(sigChan)
		cancel()
		return nil
	})
	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, stopping tools", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.TraceFile != "" {
		shutdown, err := telemetry.StartTracing(opts.TraceFile)
		if err != nil {
			s.close()
			return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
		}
		s.cleanups = append(s.cleanups, func() error {
			return shutdown(context.Background())
		})
	}

	var metrics *telemetry.Metrics
	if opts.MetricsFile != "" {
		metrics = telemetry.NewMetrics()
		s.cleanups = append(s.cleanups, func() error {
			return metrics.WriteTextfile(opts.MetricsFile)
		})
	}

	env, err := pipeline.NewEnv(ctx, pipeline.EnvOptions{
		Root:           opts.Root,
		DisableSandbox: opts.NoSandbox,
		Metrics:        metrics,
		Reporter:       pipeline.NewReporter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Format == "json"),
		Logger:         s.logger,
	})
	if err != nil {
		s.close()
		return nil, WrapExitError(ExitCommandError, "failed to prepare run", err)
	}
	s.env = env
	s.cleanups = append(s.cleanups, env.Close)

	s.logger.Info("run started", "root", env.Root, "cache", env.Store.Path())
	return s, nil
}

// close runs cleanups in reverse order.
func (s *session) close() {
	var errs []error
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		errs = append(errs, s.cleanups[i]())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("error during shutdown", "error", err)
	}
}

// runErr maps a pipeline failure to an exit error.
func runErr(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "interrupted", err)
	}
	return WrapExitError(ExitFailure, message, err)
}
