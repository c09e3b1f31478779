// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Exit codes used by fingerd.
const (
	// ExitFailure reports a runtime or configuration error.
	ExitFailure = 1

	// ExitUsage reports invalid command-line usage.
	ExitUsage = 2
)

// exit is replaced in tests.
var exit = os.Exit

// Fatal writes "error: err" to stderr and exits with ExitFailure. Use
// it in main() for errors from run() where the structured logger may
// not be initialized.
func Fatal(err error) {
	report(os.Stderr, err)
	exit(ExitFailure)
}

// UsageError writes "error: err" and the usage hint to stderr and exits
// with ExitUsage.
func UsageError(err error, program string) {
	report(os.Stderr, err)
	fmt.Fprintf(os.Stderr, "run '%s --help' for usage\n", program)
	exit(ExitUsage)
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
