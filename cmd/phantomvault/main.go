package main

import (
	"os"

	"phantomvault/internal/cli"
)

const version = "v0.1"

func main() {
	os.Exit(cli.Execute(version))
}
