package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/groom/internal/config"
	"github.com/roach88/groom/internal/pipeline"
	"github.com/roach88/groom/internal/store"
	"github.com/roach88/groom/internal/version"
)

// CacheInfo describes the cache database.
type CacheInfo struct {
	Path     string             `json:"path"`
	Identity string             `json:"identity"`
	Reset    bool               `json:"reset"`
	Tables   []store.TableCount `json:"tables"`
}

func (c CacheInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cache:    %s\n", c.Path)
	fmt.Fprintf(&b, "Identity: %s\n", c.Identity)
	if c.Reset {
		b.WriteString("(created or reset for this binary)\n")
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")
	for _, t := range c.Tables {
		fmt.Fprintf(tw, "%s\t%d\n", t.Name, t.Rows)
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NewCacheCommand creates the cache command.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the result cache",
	}
	cmd.AddCommand(newCacheInfoCommand(rootOpts))
	return cmd
}

func newCacheInfoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the cache location, binary identity and entries per tool",
		Long: `Show the cache location, binary identity and entries per tool.

Opening the cache with a different groom build empties it, as any other
command would.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			newLogger(cmd, opts.Verbose)
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			info, err := cacheInfo(cmd, version.BinaryID())
			if err != nil {
				_ = formatter.Error("E002", err.Error(), nil)
				return WrapExitError(ExitCommandError, "cache unavailable", err)
			}
			return formatter.Success(info)
		},
	}
}

func cacheInfo(cmd *cobra.Command, identity string) (CacheInfo, error) {
	path, err := config.DatabasePath()
	if err != nil {
		return CacheInfo{}, err
	}
	st, err := store.Open(path, identity, pipeline.Tables()...)
	if err != nil {
		return CacheInfo{}, err
	}
	defer st.Close()

	counts, err := st.Counts(cmd.Context())
	if err != nil {
		return CacheInfo{}, err
	}
	return CacheInfo{
		Path:     st.Path(),
		Identity: st.Identity(),
		Reset:    st.Fresh(),
		Tables:   counts,
	}, nil
}
