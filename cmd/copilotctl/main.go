package main

import (
	"os"

	"neurocopilot/cmd/copilotctl/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
