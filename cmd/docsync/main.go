// Command docsync validates model catalogs and documents, applies JSON
// patches, and inspects or replays the patch journal.
package main

import (
	"fmt"
	"os"

	"github.com/bokeh/bokeh-sub002/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
