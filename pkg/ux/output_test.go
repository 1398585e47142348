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
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPrinter(mode Mode) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut, mode), &out, &errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"rich", ModeRich},
		{"plain", ModePlain},
		{"MIN", ModePlain},
		{"machine", ModeMachine},
		{"q", ModeMachine},
		{"", ModeRich},
		{"whatever", ModeRich},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMode(tt.in))
		})
	}
}

func TestDetectMode(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("NAUTILUS_OUTPUT", "plain")
		assert.Equal(t, ModePlain, DetectMode(os.Stdout))
	})
	t.Run("non terminal is machine", func(t *testing.T) {
		t.Setenv("NAUTILUS_OUTPUT", "")
		f, err := os.CreateTemp(t.TempDir(), "out")
		assert.NoError(t, err)
		defer f.Close()
		assert.Equal(t, ModeMachine, DetectMode(f))
	})
	t.Run("nil file", func(t *testing.T) {
		t.Setenv("NAUTILUS_OUTPUT", "")
		assert.Equal(t, ModeMachine, DetectMode(nil))
	})
}

func TestPrinter_Machine(t *testing.T) {
	p, out, errOut := newTestPrinter(ModeMachine)

	p.Title("ignored")
	p.Success("parsed")
	p.Field("id", "urn:cts:latinLit:phi1294")
	p.Field("empty", "")
	p.List([]string{"1", "2"})
	p.Status(IconWarning, "urn:x", "is not present")
	p.Counts("groups", 1, "texts", 2)
	p.Warning("careful")
	p.Error("broken")

	assert.Equal(t,
		"OK: parsed\n"+
			"id\turn:cts:latinLit:phi1294\n"+
			"1\n2\n"+
			"⚠\turn:x\tis not present\n"+
			"SUMMARY: groups=1 texts=2\n",
		out.String())
	assert.Equal(t, "WARN: careful\nERROR: broken\n", errOut.String())
}

func TestPrinter_Plain(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)

	p.Title("Metadata")
	p.Field("kind", "edition")
	p.List([]string{"1.1"})
	p.Box("1.1", "line a")
	p.Counts("texts", 2)

	assert.Equal(t, "Metadata\nkind: edition\n• 1.1\n1.1\nline a\n2 texts\n", out.String())
}

func TestPrinter_RichKeepsText(t *testing.T) {
	p, out, errOut := newTestPrinter(ModeRich)

	p.Title("Metadata")
	p.Field("kind", "edition")
	p.Box("1.1", "line a")
	p.Status(IconSuccess, "urn:x", "")
	p.Error("broken")

	for _, want := range []string{"Metadata", "kind:", "edition", "line a", "urn:x"} {
		assert.Contains(t, out.String(), want)
	}
	assert.Contains(t, errOut.String(), "broken")
	assert.Equal(t, ModeRich, p.Mode())
}
