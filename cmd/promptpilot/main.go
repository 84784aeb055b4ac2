package main

import (
	"os"

	"github.com/promptpilot/promptpilot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
