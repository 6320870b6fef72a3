package main

import (
	"os"

	"github.com/gapeva/poolbot/cmd/poolbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
