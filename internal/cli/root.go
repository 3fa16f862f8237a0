package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/groom/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     int
	Format      string // "json" | "text"
	Root        string
	TraceFile   string
	MetricsFile string
	NoSandbox   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the groom CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "groom",
		Short: "groom - cached formatting and linting",
		Long: `Format and lint the files changed on a branch, remembering every result.

Formatters and linters run in a sandbox with an empty environment. Their
results are cached by tool version, configuration and file content, so files
that were already processed are skipped without spawning the tool.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "log progress (-v) or debug detail (-vv) to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "repository root (default: git work tree of the current directory)")
	cmd.PersistentFlags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans as JSON to this file")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this file")
	cmd.PersistentFlags().BoolVar(&opts.NoSandbox, "no-sandbox", false, "run tools without sandbox-exec on macOS")

	cmd.AddCommand(NewFormatCommand(opts))
	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}
