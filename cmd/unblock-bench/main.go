package main

import (
	"os"

	"github.com/utkarsh5026/unblock/cmd/unblock-bench/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
