package main

import (
	"os"

	"github.com/lazypower/ltm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
