// Command groom formats and lints changed files through a persistent cache.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/groom/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "groom:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
