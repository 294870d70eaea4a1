// Command tileconverge converges a map tile server to its declared state.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tileconverge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tileconverge:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
