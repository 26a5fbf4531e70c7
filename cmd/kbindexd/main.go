// Package main provides the entry point for the kbindexd service.
package main

import (
	"os"

	"github.com/kbforge/kbindexd/cmd/kbindexd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
