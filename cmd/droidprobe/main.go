package main

import (
	"os"

	"github.com/droidprobe/droidprobe/cmd/droidprobe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
