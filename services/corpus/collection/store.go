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

import (
	"context"
	"fmt"
)

// Store holds the collection hierarchy and answers navigation queries.
//
// Implementations: the in-memory Tree in this package, and the
// triple-backed stores in the graph package. All methods return nodes
// sorted by identity and copies that callers may modify.
//
// Thread Safety: Implementations must be safe for concurrent readers.
// Writers (Put, Remove, Clear) are serialised by the caller.
type Store interface {
	// Get resolves an identity. Returns ErrUnknownCollection if absent.
	Get(ctx context.Context, id string) (*Node, error)

	// Exists reports whether the identity is a stored node.
	Exists(ctx context.Context, id string) (bool, error)

	// Children returns the direct children of id.
	Children(ctx context.Context, id string) ([]*Node, error)

	// Parent returns the parent of id, or nil for a root.
	Parent(ctx context.Context, id string) (*Node, error)

	// Descendants returns every node below id at any depth.
	Descendants(ctx context.Context, id string) ([]*Node, error)

	// ReadableDescendants returns the readable nodes below id.
	ReadableDescendants(ctx context.Context, id string) ([]*Node, error)

	// Contains reports whether a parent path of length >= 1 leads from
	// id to ancestor.
	Contains(ctx context.Context, id, ancestor string) (bool, error)

	// Put inserts nodes in order, merging into existing nodes with the
	// same identity. Each node's parent must already be stored.
	Put(ctx context.Context, nodes ...*Node) error

	// Remove deletes id and its whole subtree. Absent ids are ignored.
	Remove(ctx context.Context, id string) error

	// Clear deletes everything. Safe to call on an empty store.
	Clear(ctx context.Context) error

	// Close releases the store. Safe to call more than once.
	Close() error
}

// Prune removes empty branches below root until none remain.
//
// Description:
//
//	A branch is empty when it is not readable and has no readable
//	descendants. Each pass lists the descendants of root once, marks the
//	ancestors of every readable node through their parent links and
//	removes the unmarked ones still present (removing a group also
//	removes its empty works). Passes repeat until one finds nothing.
//	root itself is kept.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	s - The store.
//	root - Identity whose subtree is pruned.
//
// Outputs:
//
//	[]string - Removed identities in removal order.
//	error - Non-nil if the store fails.
func Prune(ctx context.Context, s Store, root string) ([]string, error) {
	var removed []string
	for {
		descendants, err := s.Descendants(ctx, root)
		if err != nil {
			return removed, fmt.Errorf("list descendants of %s: %w", root, err)
		}

		parents := make(map[string]string, len(descendants))
		for _, n := range descendants {
			parents[n.ID] = n.Parent
		}
		full := make(map[string]bool)
		for _, n := range descendants {
			if !n.Readable() {
				continue
			}
			for id := n.Parent; id != "" && !full[id]; id = parents[id] {
				if _, ok := parents[id]; !ok {
					break
				}
				full[id] = true
			}
		}

		var empty []string
		for _, n := range descendants {
			if !n.Readable() && !full[n.ID] {
				empty = append(empty, n.ID)
			}
		}
		if len(empty) == 0 {
			return removed, nil
		}

		for _, id := range empty {
			ok, err := s.Exists(ctx, id)
			if err != nil {
				return removed, err
			}
			if !ok {
				continue
			}
			if err := s.Remove(ctx, id); err != nil {
				return removed, fmt.Errorf("remove %s: %w", id, err)
			}
			removed = append(removed, id)
		}
	}
}

// Member summarises a child collection.
type Member struct {
	ID       string  `cbor:"1,keyasint"`
	Kind     string  `cbor:"2,keyasint"`
	Labels   []Label `cbor:"3,keyasint,omitempty"`
	Readable bool    `cbor:"4,keyasint"`
}

// Metadata is a serialisable description of a collection and its
// immediate surroundings. It is what the resolver caches for metadata
// requests.
type Metadata struct {
	ID                  string   `cbor:"1,keyasint"`
	Kind                string   `cbor:"2,keyasint"`
	Labels              []Label  `cbor:"3,keyasint,omitempty"`
	Description         []Label  `cbor:"4,keyasint,omitempty"`
	Lang                string   `cbor:"5,keyasint,omitempty"`
	Parent              string   `cbor:"6,keyasint,omitempty"`
	Readable            bool     `cbor:"7,keyasint"`
	Citation            []string `cbor:"8,keyasint,omitempty"`
	Members             []Member `cbor:"9,keyasint,omitempty"`
	ReadableDescendants []string `cbor:"10,keyasint,omitempty"`
}

// Describe builds the Metadata of id.
func Describe(ctx context.Context, s Store, id string) (*Metadata, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	readable, err := s.ReadableDescendants(ctx, id)
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		ID:                  n.ID,
		Kind:                n.Kind.String(),
		Labels:              n.Labels,
		Description:         n.Description,
		Lang:                n.Lang,
		Parent:              n.Parent,
		Readable:            n.Readable(),
		ReadableDescendants: IDs(readable),
	}
	if n.Citation != nil {
		md.Citation = n.Citation.Names()
	}
	for _, c := range children {
		md.Members = append(md.Members, Member{ID: c.ID, Kind: c.Kind.String(), Labels: c.Labels, Readable: c.Readable()})
	}
	return md, nil
}

// MemberIDs returns the identities of the members.
func (m *Metadata) MemberIDs() []string {
	out := make([]string, len(m.Members))
	for i, c := range m.Members {
		out[i] = c.ID
	}
	return out
}

// View binds a node to the store it came from, so kind-specific data and
// navigation travel together.
type View struct {
	*Node
	store Store
}

// Bind returns a View of n over s.
func Bind(s Store, n *Node) *View {
	return &View{Node: n, store: s}
}

// Resolve returns a View of id over s.
func Resolve(ctx context.Context, s Store, id string) (*View, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Bind(s, n), nil
}

// Members returns the children of the view.
func (v *View) Members(ctx context.Context) ([]*View, error) {
	return v.wrap(v.store.Children(ctx, v.ID))
}

// ParentView returns the parent of the view, or nil at a root.
func (v *View) ParentView(ctx context.Context) (*View, error) {
	p, err := v.store.Parent(ctx, v.ID)
	if err != nil || p == nil {
		return nil, err
	}
	return Bind(v.store, p), nil
}

// Descendants returns every view below this one.
func (v *View) Descendants(ctx context.Context) ([]*View, error) {
	return v.wrap(v.store.Descendants(ctx, v.ID))
}

// ReadableDescendants returns the readable views below this one.
func (v *View) ReadableDescendants(ctx context.Context) ([]*View, error) {
	return v.wrap(v.store.ReadableDescendants(ctx, v.ID))
}

func (v *View) wrap(nodes []*Node, err error) ([]*View, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*View, len(nodes))
	for i, n := range nodes {
		out[i] = Bind(v.store, n)
	}
	return out, nil
}
