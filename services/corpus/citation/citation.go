// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citation reads TEI documents and their citation schemes.
//
// A citation scheme describes how a text's address space is shaped: a
// nested sequence of levels (book → poem → line), each with a name and a
// selector that locates the passages of that level. TEI declares the scheme
// in refsDecl/cRefPattern elements, innermost level first:
//
//	<refsDecl n="CTS">
//	  <cRefPattern n="line" replacementPattern="#xpath(/tei:TEI/.../tei:div[@n='$1']/tei:l[@n='$2'])"/>
//	  <cRefPattern n="poem" replacementPattern="#xpath(/tei:TEI/.../tei:div[@n='$1'])"/>
//	</refsDecl>
//
// Build assembles the nested scheme bottom-up from that list.
package citation

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidLevel indicates a citation level outside the scheme.
	ErrInvalidLevel = errors.New("invalid citation level")

	// ErrUnknownReference indicates a reference that addresses no passage.
	ErrUnknownReference = errors.New("unknown passage reference")

	// ErrNoCitation indicates a document without a usable refsDecl.
	ErrNoCitation = errors.New("text has no passages")

	// ErrMalformed indicates a document that cannot be parsed.
	ErrMalformed = errors.New("malformed document")

	// ErrSelector indicates a selector outside the supported subset.
	ErrSelector = errors.New("unsupported selector")
)

// Citation is one level of a citation scheme. Child is the next level down,
// nil at the deepest level.
//
// Selector is the full path from the document root to passages of this
// level, with "$N" placeholders for the N-th level value.
type Citation struct {
	Name     string    `cbor:"1,keyasint"`
	Selector string    `cbor:"2,keyasint"`
	Child    *Citation `cbor:"3,keyasint,omitempty"`
}

// Pattern is a raw cRefPattern declaration.
type Pattern struct {
	Name        string
	Match       string
	Replacement string
}

// Build assembles a scheme from patterns listed innermost first.
//
// Description:
//
//	Each pattern becomes the parent of the one before it. Selectors are
//	unwrapped from "#xpath(...)" and single quotes are normalised to
//	double quotes. Patterns with an empty replacement are skipped.
//
// Outputs:
//
//	*Citation - Outermost level, or nil when no pattern is usable.
func Build(patterns []Pattern) *Citation {
	var current *Citation
	for _, p := range patterns {
		sel := NormalizeSelector(p.Replacement)
		if sel == "" {
			continue
		}
		current = &Citation{Name: p.Name, Selector: sel, Child: current}
	}
	return current
}

// NormalizeSelector strips the "#xpath(...)" wrapper and normalises quotes.
func NormalizeSelector(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#xpath(") && strings.HasSuffix(s, ")") {
		s = s[len("#xpath(") : len(s)-1]
	}
	return strings.ReplaceAll(s, "'", `"`)
}

// Depth returns the number of levels. A nil scheme has depth 0.
func (c *Citation) Depth() int {
	n := 0
	for l := c; l != nil; l = l.Child {
		n++
	}
	return n
}

// IsEmpty reports whether the scheme addresses no passages.
func (c *Citation) IsEmpty() bool {
	return c == nil || c.Selector == ""
}

// Levels returns the levels outermost first.
func (c *Citation) Levels() []*Citation {
	var out []*Citation
	for l := c; l != nil; l = l.Child {
		out = append(out, l)
	}
	return out
}

// Level returns the 1-based level n, or nil if out of range.
func (c *Citation) Level(n int) *Citation {
	if n < 1 {
		return nil
	}
	l := c
	for i := 1; l != nil && i < n; i++ {
		l = l.Child
	}
	return l
}

// Names returns the level names outermost first.
func (c *Citation) Names() []string {
	levels := c.Levels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.Name
	}
	return out
}

// FromLevels rebuilds a scheme from (name, selector) pairs listed outermost
// first. It is the inverse of Levels.
func FromLevels(names, selectors []string) *Citation {
	var current *Citation
	for i := len(names) - 1; i >= 0; i-- {
		current = &Citation{Name: names[i], Selector: selectors[i], Child: current}
	}
	return current
}
