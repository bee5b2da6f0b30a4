package main

import (
	"os"

	"codetrivia-performance/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
