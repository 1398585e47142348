// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collection models the corpus hierarchy.
//
// The hierarchy is inventory root → (named inventory) → textgroup → work →
// text version. Nodes are plain values tagged with a Kind; navigation is a
// separate capability provided by a Store, so the same Node type serves
// the in-memory Tree and the triple-backed stores.
package collection

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

var (
	// ErrUnknownCollection indicates an identity absent from the store.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnknownType indicates a stored type tag with no Kind.
	ErrUnknownType = errors.New("unknown collection type")

	// ErrIdentity indicates a node whose identity or kind does not fit
	// under its parent.
	ErrIdentity = errors.New("identity does not extend parent")
)

// Label is a text in a given language.
type Label struct {
	Lang string `cbor:"1,keyasint" yaml:"lang"`
	Text string `cbor:"2,keyasint" yaml:"text"`
}

// Node is one collection in the hierarchy.
//
// Path and Citation are only set on readable kinds.
type Node struct {
	ID          string
	Kind        Kind
	Parent      string
	Labels      []Label
	Description []Label
	Lang        string
	Path        string
	Citation    *citation.Citation
}

// Readable reports whether the node is a leaf text.
func (n *Node) Readable() bool {
	return n.Kind.Readable()
}

// Label returns the label in lang, the first label when lang is absent,
// or "".
func (n *Node) Label(lang string) string {
	for _, l := range n.Labels {
		if l.Lang == lang {
			return l.Text
		}
	}
	if len(n.Labels) > 0 {
		return n.Labels[0].Text
	}
	return ""
}

// Clone returns a deep copy. Citations are immutable and shared.
func (n *Node) Clone() *Node {
	c := *n
	c.Labels = slices.Clone(n.Labels)
	c.Description = slices.Clone(n.Description)
	return &c
}

// Merge folds other into n: labels and descriptions are unioned, empty
// scalar fields are filled. Identity, kind and parent are kept.
func (n *Node) Merge(other *Node) {
	n.Labels = UnionLabels(n.Labels, other.Labels)
	n.Description = UnionLabels(n.Description, other.Description)
	if n.Lang == "" {
		n.Lang = other.Lang
	}
	if n.Path == "" {
		n.Path = other.Path
	}
	if n.Citation == nil {
		n.Citation = other.Citation
	}
}

// UnionLabels returns the sorted union of two label sets.
func UnionLabels(a, b []Label) []Label {
	out := slices.Clone(a)
	for _, l := range b {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	SortLabels(out)
	return out
}

// SortLabels orders labels by language then text.
func SortLabels(labels []Label) {
	slices.SortFunc(labels, func(x, y Label) int {
		if c := strings.Compare(x.Lang, y.Lang); c != 0 {
			return c
		}
		return strings.Compare(x.Text, y.Text)
	})
}

// Validate checks that child may hang under parent.
//
// Description:
//
//	The parent kind must match child.Kind.ParentKind. Below textgroups the
//	child identity must be a delimiter-respecting extension of the parent
//	identity. Textgroups hang under inventories whose names are not URNs,
//	so the identity rule does not apply there.
//
// Outputs:
//
//	error - ErrIdentity (wrapped) when the placement is invalid.
func Validate(parent, child *Node) error {
	if child.Kind == KindUnknown {
		return fmt.Errorf("%w: %s has no kind", ErrIdentity, child.ID)
	}
	if parent == nil {
		if child.Kind != KindInventoryRoot {
			return fmt.Errorf("%w: %s %s needs a parent", ErrIdentity, child.Kind, child.ID)
		}
		return nil
	}
	if parent.Kind != child.Kind.ParentKind() {
		return fmt.Errorf("%w: %s %s cannot hang under %s %s", ErrIdentity, child.Kind, child.ID, parent.Kind, parent.ID)
	}
	if child.Kind.ParentKind() != KindInventoryRoot && !urn.IsExtension(parent.ID, child.ID) {
		return fmt.Errorf("%w: %s is not an extension of %s", ErrIdentity, child.ID, parent.ID)
	}
	return nil
}

// SortNodes orders nodes by identity.
func SortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.ID, b.ID) })
}

// IDs returns the identities of nodes in order.
func IDs(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
