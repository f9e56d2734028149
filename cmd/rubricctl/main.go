package main

import (
	"fmt"
	"os"

	"github.com/PhucNguyen204/rubricfeed/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
