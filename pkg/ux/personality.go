// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode defines how rich CLI output is.
type Mode string

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons without colors or boxes.
	ModePlain Mode = "plain"

	// ModeMachine outputs tab-separated plain text suitable for scripting.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag value to a Mode. Unknown values are rich.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "plain", "minimal", "min":
		return ModePlain
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode picks the mode from NAUTILUS_OUTPUT, falling back to
// machine output when f is not a terminal.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv("NAUTILUS_OUTPUT"); env != "" {
		return ParseMode(env)
	}
	if !isTerminal(f) {
		return ModeMachine
	}
	return ModeRich
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
