// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package urn implements CTS identities and passage references.
//
// A CTS URN addresses a collection node and optionally a passage inside a
// text:
//
//	urn:cts:greekLit:tlg0012.tlg001.perseus-grc2:1.1-1.10
//	└─┬─┘ └───┬───┘ └──┬──┘ └─┬──┘ └─────┬────┘ └───┬───┘
//	 scheme namespace group  work   version   reference
//
// Identities are hierarchical: a work URN is a delimiter-respecting
// extension of its group URN, a version URN of its work URN.
package urn

import (
	"errors"
	"fmt"
	"strings"
)

// Hierarchy levels of a URN, counted the way CTS counts them.
const (
	LevelNamespace = 2
	LevelTextGroup = 3
	LevelWork      = 4
	LevelVersion   = 5
	LevelPassage   = 6
)

const prefix = "urn:cts:"

var (
	// ErrInvalidSyntax indicates a string that is not a CTS URN.
	ErrInvalidSyntax = errors.New("invalid URN syntax")

	// ErrInvalidURN indicates a well-formed URN that does not address
	// the requested kind of resource (for example a group where a text
	// is required).
	ErrInvalidURN = errors.New("invalid URN")
)

// URN is a parsed CTS identity.
//
// Empty fields are absent. A URN is always filled from the left: if Work is
// set, TextGroup is set too.
type URN struct {
	Namespace string
	TextGroup string
	Work      string
	Version   string
	Reference string
}

// Parse parses a CTS URN.
//
// Description:
//
//	Accepts "urn:cts:<ns>[:<group>[.<work>[.<version>]][:<reference>]]".
//	The scheme prefix is matched case-insensitively. Empty components
//	between delimiters are rejected.
//
// Inputs:
//
//	s - The URN string.
//
// Outputs:
//
//	URN - The parsed identity.
//	error - ErrInvalidSyntax (wrapped) when s is malformed.
func Parse(s string) (URN, error) {
	var u URN
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return u, fmt.Errorf("%w: %q lacks the urn:cts: prefix", ErrInvalidSyntax, s)
	}

	parts := strings.SplitN(s[len(prefix):], ":", 3)
	if parts[0] == "" {
		return u, fmt.Errorf("%w: %q has no namespace", ErrInvalidSyntax, s)
	}
	u.Namespace = parts[0]

	if len(parts) > 1 {
		work := strings.Split(parts[1], ".")
		if len(work) > 3 {
			return u, fmt.Errorf("%w: %q has more than three work components", ErrInvalidSyntax, s)
		}
		for _, p := range work {
			if p == "" {
				return u, fmt.Errorf("%w: %q has an empty work component", ErrInvalidSyntax, s)
			}
		}
		u.TextGroup = work[0]
		if len(work) > 1 {
			u.Work = work[1]
		}
		if len(work) > 2 {
			u.Version = work[2]
		}
	}

	if len(parts) > 2 {
		if parts[2] == "" {
			return u, fmt.Errorf("%w: %q has an empty reference", ErrInvalidSyntax, s)
		}
		if _, err := ParseReference(parts[2]); err != nil {
			return u, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
		}
		u.Reference = parts[2]
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(s string) URN {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Level returns the deepest populated hierarchy level.
//
// A URN with a reference reports LevelPassage.
func (u URN) Level() int {
	switch {
	case u.Reference != "":
		return LevelPassage
	case u.Version != "":
		return LevelVersion
	case u.Work != "":
		return LevelWork
	case u.TextGroup != "":
		return LevelTextGroup
	case u.Namespace != "":
		return LevelNamespace
	default:
		return 0
	}
}

// UpTo returns the URN truncated to the given level.
//
// Levels deeper than the URN's own level return the URN unchanged.
func (u URN) UpTo(level int) URN {
	out := URN{Namespace: u.Namespace}
	if level >= LevelTextGroup {
		out.TextGroup = u.TextGroup
	}
	if level >= LevelWork {
		out.Work = u.Work
	}
	if level >= LevelVersion {
		out.Version = u.Version
	}
	if level >= LevelPassage {
		out.Reference = u.Reference
	}
	return out
}

// String formats the URN.
func (u URN) String() string {
	if u.Namespace == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(u.Namespace)
	if u.TextGroup != "" {
		b.WriteByte(':')
		b.WriteString(u.TextGroup)
		if u.Work != "" {
			b.WriteByte('.')
			b.WriteString(u.Work)
			if u.Version != "" {
				b.WriteByte('.')
				b.WriteString(u.Version)
			}
		}
	}
	if u.Reference != "" {
		b.WriteByte(':')
		b.WriteString(u.Reference)
	}
	return b.String()
}

// IsExtension reports whether child is a strict, delimiter-respecting
// extension of parent: child starts with parent and the next character is
// one of the URN delimiters '.' or ':'.
func IsExtension(parent, child string) bool {
	if len(child) <= len(parent)+1 || !strings.HasPrefix(child, parent) {
		return false
	}
	c := child[len(parent)]
	return c == '.' || c == ':'
}
