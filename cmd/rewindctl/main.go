// Command rewindctl inspects the checkpoint archive written by a rewind core.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
