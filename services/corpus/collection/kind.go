// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collection

import "fmt"

// Kind tags a node of the collection hierarchy.
type Kind uint8

const (
	// KindUnknown is the zero value and never stored.
	KindUnknown Kind = iota

	// KindInventoryRoot is the top of the hierarchy and each named
	// inventory below it.
	KindInventoryRoot

	// KindTextGroup groups the works of one author or corpus section.
	KindTextGroup

	// KindWork groups the versions of one work.
	KindWork

	// KindEdition is a readable text in the work's original language.
	KindEdition

	// KindTranslation is a readable text in another language.
	KindTranslation

	// KindCommentary is a readable text commenting on the work.
	KindCommentary
)

var kindTags = [...]string{
	KindUnknown:       "unknown",
	KindInventoryRoot: "inventory",
	KindTextGroup:     "textgroup",
	KindWork:          "work",
	KindEdition:       "edition",
	KindTranslation:   "translation",
	KindCommentary:    "commentary",
}

// String returns the stored type tag of the kind.
func (k Kind) String() string {
	if int(k) < len(kindTags) {
		return kindTags[k]
	}
	return "unknown"
}

// Readable reports whether nodes of this kind are leaf texts.
func (k Kind) Readable() bool {
	switch k {
	case KindEdition, KindTranslation, KindCommentary:
		return true
	default:
		return false
	}
}

// ParentKind returns the kind a node of kind k must hang under.
// Inventory roots may hang under other inventory roots or nothing.
func (k Kind) ParentKind() Kind {
	switch k {
	case KindTextGroup:
		return KindInventoryRoot
	case KindWork:
		return KindTextGroup
	case KindEdition, KindTranslation, KindCommentary:
		return KindWork
	default:
		return KindInventoryRoot
	}
}

// KindFromType maps a stored type tag back to its Kind. Every backend
// reconstructs node kinds through this single function.
//
// Outputs:
//
//	Kind - The kind.
//	error - ErrUnknownType (wrapped) for unrecognised tags.
func KindFromType(tag string) (Kind, error) {
	for k, t := range kindTags {
		if k != int(KindUnknown) && t == tag {
			return Kind(k), nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownType, tag)
}
