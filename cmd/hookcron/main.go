// Command hookcron runs the managed cron scheduler.
package main

import (
	"fmt"
	"os"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
