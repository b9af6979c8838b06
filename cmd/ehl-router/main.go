// Command ehl-router is the entry point for the Capture Router.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ehl-ingestd/cmd/ehl-router/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
