// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package urn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidReference indicates a malformed passage reference.
var ErrInvalidReference = errors.New("invalid passage reference")

// Reference addresses a passage inside a text: either a point ("1.2") or
// an inclusive range ("1.2-1.5").
//
// Each side is the list of citation level values, outermost first. End is
// nil for points.
type Reference struct {
	Start []string
	End   []string
}

// ParseReference parses "a.b.c" or "a.b-c.d".
//
// Description:
//
//	A range whose start and end are equal collapses to a point. Both sides
//	of a range must have the same depth.
//
// Outputs:
//
//	Reference - The parsed reference.
//	error - ErrInvalidReference (wrapped) when s is malformed.
func ParseReference(s string) (Reference, error) {
	var r Reference
	if s == "" {
		return r, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	sides := strings.Split(s, "-")
	if len(sides) > 2 {
		return r, fmt.Errorf("%w: %q has more than one range separator", ErrInvalidReference, s)
	}

	start, err := splitSide(sides[0])
	if err != nil {
		return r, fmt.Errorf("%w: %q: %v", ErrInvalidReference, s, err)
	}
	r.Start = start

	if len(sides) == 2 {
		end, err := splitSide(sides[1])
		if err != nil {
			return r, fmt.Errorf("%w: %q: %v", ErrInvalidReference, s, err)
		}
		if len(end) != len(start) {
			return r, fmt.Errorf("%w: %q mixes depths %d and %d", ErrInvalidReference, s, len(start), len(end))
		}
		if !equalParts(start, end) {
			r.End = end
		}
	}
	return r, nil
}

func splitSide(s string) ([]string, error) {
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, errors.New("empty component")
		}
	}
	return parts, nil
}

// Point builds a point reference from its level values.
func Point(parts ...string) Reference {
	return Reference{Start: append([]string(nil), parts...)}
}

// Span builds a range reference from two level-value lists. Equal sides
// collapse to a point.
func Span(start, end []string) Reference {
	if equalParts(start, end) {
		return Point(start...)
	}
	return Reference{
		Start: append([]string(nil), start...),
		End:   append([]string(nil), end...),
	}
}

// IsZero reports whether the reference is empty.
func (r Reference) IsZero() bool {
	return len(r.Start) == 0
}

// IsRange reports whether the reference spans more than one passage.
func (r Reference) IsRange() bool {
	return len(r.End) > 0
}

// Depth is the number of citation levels addressed.
func (r Reference) Depth() int {
	return len(r.Start)
}

// StartString formats the start side.
func (r Reference) StartString() string {
	return strings.Join(r.Start, ".")
}

// EndString formats the end side, or the start side for points.
func (r Reference) EndString() string {
	if !r.IsRange() {
		return r.StartString()
	}
	return strings.Join(r.End, ".")
}

// String formats the reference.
func (r Reference) String() string {
	if r.IsRange() {
		return r.StartString() + "-" + r.EndString()
	}
	return r.StartString()
}

// HasPrefix reports whether the point reference p lies under the level
// values of prefix.
func HasPrefix(p, prefix []string) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

func equalParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
