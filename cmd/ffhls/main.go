// Package main is the entry point for the ffhls application.
package main

import (
	"os"

	"github.com/jmylchreest/ffhls/cmd/ffhls/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
