package main

import (
	"os"

	"github.com/hollowpine/presage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
