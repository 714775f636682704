// Package main is the entry point for the shiden application.
package main

import (
	"os"

	"github.com/ahoge-moe/Shiden/cmd/shiden/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
