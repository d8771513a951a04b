package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/gohs/internal/client/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if cli.GetExitCode(err) != cli.ExitNotFound {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
