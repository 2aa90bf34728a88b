// Command invctl is a debug console for a single inventory. Commands run
// against an in-memory inventory, or against one kept in a SQLite file when
// --db is given.
package main

import (
	"os"
)

func main() {
	c := newConsole(os.Stdout, os.Stderr)
	err := newRootCmd(c).Execute()
	c.close()
	if err != nil {
		os.Exit(1)
	}
}
