// Package main is the entry point for the reconctl operator CLI.
package main

import (
	"os"

	"github.com/mmynk/posrecon/cmd/reconctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
