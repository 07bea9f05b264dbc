// Package main is the entry point for the kirolint CLI.
//
// All logic lives in the commands package.
package main

import (
	"os"

	"github.com/JNZader/kirolint/cmd/kirolint/commands"
)

func main() {
	os.Exit(commands.Execute())
}
