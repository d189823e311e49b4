package main

import (
	"os"

	"github.com/bluebird-ink/windi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
