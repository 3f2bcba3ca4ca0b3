// Command shopsync is a cart and order sync client for a shop backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/shopsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
