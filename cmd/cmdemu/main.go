// Command cmdemu replays built-in command buffer scenarios against a native
// backend and prints the resulting native call trace.
//
// Usage:
//
//	cmdemu replay --scenario triangle
//	cmdemu replay --scenario copy-dispatch --deferred 2
//	cmdemu backends
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
