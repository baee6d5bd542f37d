// Package main provides the leapdb command for inspecting and editing a
// LeapDB store.
package main

import (
	"os"

	"github.com/leapstack-labs/leapdb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
