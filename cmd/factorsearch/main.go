// factorsearch discovers a factorized prompt structure for a task and
// optimizes its factors one at a time with DAP-UCB.
//
// Usage:
//
//	factorsearch run --config run.yaml [--dataset gsm8k] [--steps 6] [--mock]
//	factorsearch discover --config run.yaml
//	factorsearch version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
