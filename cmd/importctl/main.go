package main

import (
	"os"

	"github.com/contact-dispatch/cmd/importctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
