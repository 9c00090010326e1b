package main

import (
	"fmt"
	"os"

	"packd/internal/cli"
)

func main() {
	root := cli.BuildRootCmdWith(cli.DefaultConfig())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
