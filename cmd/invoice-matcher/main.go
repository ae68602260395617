package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/invoice-matcher/internal/cli"
)

// Set by -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
