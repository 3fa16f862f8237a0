package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/groom/internal/pipeline"
)

// NewLintCommand creates the lint command and its per-language children.
func NewLintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Print diagnostics for changed files",
		Long: `Lint every file changed since the merge base with the configured base ref,
plus untracked files. Diagnostics from earlier runs are replayed from the cache.

Example:
  groom lint
  groom lint haskell --format json src/Main.hs
  groom lint haskell --stdin < src/Main.hs`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.close()
			return runErr("linting failed", pipeline.RunAll(s.ctx, s.env, pipeline.Linters()))
		},
	}

	for _, l := range pipeline.Linters() {
		cmd.AddCommand(newLinterCommand(rootOpts, l))
	}
	return cmd
}

func newLinterCommand(rootOpts *RootOptions, l *pipeline.Linter) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}
	name := strings.ToLower(l.Language)

	cmd := &cobra.Command{
		Use:           name + " [paths...]",
		Short:         "Lint " + l.Language + " files with " + l.Tool.Name,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Stdin && len(args) > 0 {
				return NewExitError(ExitCommandError, "--stdin does not take paths")
			}
			s, err := startSession(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.close()

			if opts.Stdin {
				return runErr("linting failed", l.LintStream(s.ctx, s.env, cmd.InOrStdin()))
			}
			_, err = l.Run(s.ctx, s.env, absPaths(args))
			return runErr("linting failed", err)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "lint standard input")
	return cmd
}

// absPaths makes command-line paths absolute against the working directory.
func absPaths(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if abs, err := filepath.Abs(a); err == nil {
			a = abs
		}
		out = append(out, a)
	}
	return out
}
