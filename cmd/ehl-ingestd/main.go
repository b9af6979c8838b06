// Command ehl-ingestd is the entry point for the ingestion server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ehl-ingestd/cmd/ehl-ingestd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
