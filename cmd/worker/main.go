// Package main implements the back-office worker binary: one process
// consumes the chunk queue of a single catalog worker, serves the
// ledger read API, pumps the delay scheduler, and, for the scheduled
// worker, runs the recurring status sweeps.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
