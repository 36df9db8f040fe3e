package main

import (
	"os"

	"github.com/athena-ops/athena-stack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
