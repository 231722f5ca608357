package main

import (
	"os"

	"github.com/stratamed/journeysim/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
