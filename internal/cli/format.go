package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/groom/internal/pipeline"
)

// StreamOptions holds flags shared by single-language commands.
type StreamOptions struct {
	*RootOptions
	Stdin bool
}

// NewFormatCommand creates the format command and its per-language children.
func NewFormatCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Format changed files in place",
		Long: `Format every file changed since the merge base with the configured base
ref, plus untracked files, with all formatters concurrently.

Example:
  groom format
  groom format haskell src/Main.hs
  groom format nix --stdin < default.nix`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.close()
			return runErr("formatting failed", pipeline.RunAll(s.ctx, s.env, pipeline.Formatters()))
		},
	}

	for _, f := range pipeline.Formatters() {
		cmd.AddCommand(newFormatterCommand(rootOpts, f))
	}
	return cmd
}

func newFormatterCommand(rootOpts *RootOptions, f *pipeline.Formatter) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}
	name := strings.ToLower(f.Language)

	cmd := &cobra.Command{
		Use:           name + " [paths...]",
		Short:         "Format " + f.Language + " files with " + f.Tool.Name,
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
				return runErr("formatting failed", f.FormatStream(s.ctx, s.env, cmd.InOrStdin()))
			}
			_, err = f.Run(s.ctx, s.env, absPaths(args))
			return runErr("formatting failed", err)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "format standard input to standard output")
	return cmd
}
