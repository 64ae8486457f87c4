// Command screentrace correlates screen traces and reports anomalies.
//
// Usage:
//
//	screentrace analyze [capture] [--config file] [--marker text] [--fail-on severity]
//	screentrace watch <capture> [--interval 5s]
//	screentrace validate [capture]
//	screentrace test <scenarios-dir> [--update]
//	screentrace version
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/screentrace/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
