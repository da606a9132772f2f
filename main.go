package main

import (
	"os"

	"harbormaster/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
