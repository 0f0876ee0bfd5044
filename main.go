// Package main is the entry point for the nfscap trace analysis tool.
package main

import (
	"fmt"
	"os"

	"nfscap.xyz/nfscap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
