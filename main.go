// Package main is the entry point for evtriage.
package main

import (
	"os"

	"evtriage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
