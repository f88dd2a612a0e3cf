// Package main is the entry point for salesetl.
package main

import (
	"fmt"
	"os"

	"salesetl/internal/cli"

	// register all backends with the storage factory.
	// config picks which one to use but every binary carries all of them.
	_ "salesetl/internal/storage/all"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
