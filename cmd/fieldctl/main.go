// Command fieldctl administers field catalogs and records of a fieldcore
// store and compiles conditions to SQL.
package main

import (
	"fmt"
	"os"
)

func main() {
	cli := NewCLI(os.Stdout, os.Stderr)
	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
