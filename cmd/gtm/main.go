// Package main is the entry point for the gtm CLI.
package main

import (
	"os"

	"github.com/AndreyAkinshin/gtm/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
