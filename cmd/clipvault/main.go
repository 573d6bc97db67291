package main

import "clipvault/internal/cli"

func main() {
	// Delegate all execution to the CLI package
	cli.Execute()
}
