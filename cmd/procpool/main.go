// Command procpool runs a pool of supervised worker processes from a YAML
// manifest and talks to them interactively.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
