package main

import (
	"os"

	"github.com/conneroisu/ssrkit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
