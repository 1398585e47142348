// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command nautilus resolves CTS collections, passages and references from
// local corpus directories.
//
// Usage:
//
//	nautilus --source ./canonical-latinLit parse
//	nautilus --source ./canonical-latinLit metadata urn:cts:latinLit:phi1294
//	nautilus --source ./canonical-latinLit reffs urn:cts:latinLit:phi1294.phi002.perseus-lat2 --level 2
//	nautilus --source ./canonical-latinLit passage urn:cts:latinLit:phi1294.phi002.perseus-lat2:1.1
//
// With a configuration file (see "nautilus config init"):
//
//	nautilus -c nautilus.yaml watch
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	if err := a.execute(ctx, args, stdout, stderr); err != nil {
		return exitCode(err)
	}
	return 0
}
