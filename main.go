package main

import (
	"os"

	"github.com/acredita/respaldo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
