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
	"sync"
)

// Tree is the in-memory Store.
//
// Description:
//
//	Nodes are kept in a map by identity with a child index per parent.
//	Descendant queries walk the child index.
//
// Thread Safety: Safe for concurrent use.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children map[string]map[string]struct{}
}

// NewTree creates an empty Tree.
func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[string]*Node),
		children: make(map[string]map[string]struct{}),
	}
}

// Get implements Store.
func (t *Tree) Get(_ context.Context, id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, id)
	}
	return n.Clone(), nil
}

// Exists implements Store.
func (t *Tree) Exists(_ context.Context, id string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok, nil
}

// Children implements Store.
func (t *Tree) Children(_ context.Context, id string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, id)
	}
	out := make([]*Node, 0, len(t.children[id]))
	for cid := range t.children[id] {
		out = append(out, t.nodes[cid].Clone())
	}
	SortNodes(out)
	return out, nil
}

// Parent implements Store.
func (t *Tree) Parent(_ context.Context, id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, id)
	}
	if n.Parent == "" {
		return nil, nil
	}
	return t.nodes[n.Parent].Clone(), nil
}

// Descendants implements Store.
func (t *Tree) Descendants(_ context.Context, id string) ([]*Node, error) {
	return t.collect(id, func(*Node) bool { return true })
}

// ReadableDescendants implements Store.
func (t *Tree) ReadableDescendants(_ context.Context, id string) ([]*Node, error) {
	return t.collect(id, (*Node).Readable)
}

func (t *Tree) collect(id string, keep func(*Node) bool) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, id)
	}
	var out []*Node
	t.walk(id, func(n *Node) {
		if keep(n) {
			out = append(out, n.Clone())
		}
	})
	SortNodes(out)
	return out, nil
}

// walk visits the strict descendants of id. Caller holds the lock.
func (t *Tree) walk(id string, fn func(*Node)) {
	for cid := range t.children[id] {
		fn(t.nodes[cid])
		t.walk(cid, fn)
	}
}

// Contains implements Store.
func (t *Tree) Contains(_ context.Context, id, ancestor string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return false, nil
	}
	for n.Parent != "" {
		if n.Parent == ancestor {
			return true, nil
		}
		n = t.nodes[n.Parent]
	}
	return false, nil
}

// Put implements Store.
func (t *Tree) Put(_ context.Context, nodes ...*Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range nodes {
		if existing, ok := t.nodes[n.ID]; ok {
			existing.Merge(n)
			continue
		}

		var parent *Node
		if n.Parent != "" {
			p, ok := t.nodes[n.Parent]
			if !ok {
				return fmt.Errorf("put %s: parent %w: %s", n.ID, ErrUnknownCollection, n.Parent)
			}
			parent = p
		}
		if err := Validate(parent, n); err != nil {
			return err
		}

		c := n.Clone()
		SortLabels(c.Labels)
		SortLabels(c.Description)
		t.nodes[c.ID] = c
		if c.Parent != "" {
			if t.children[c.Parent] == nil {
				t.children[c.Parent] = make(map[string]struct{})
			}
			t.children[c.Parent][c.ID] = struct{}{}
		}
	}
	return nil
}

// Remove implements Store.
func (t *Tree) Remove(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var subtree []string
	t.walk(id, func(d *Node) { subtree = append(subtree, d.ID) })
	for _, d := range subtree {
		delete(t.nodes, d)
		delete(t.children, d)
	}
	delete(t.nodes, id)
	delete(t.children, id)
	if n.Parent != "" {
		delete(t.children[n.Parent], id)
	}
	return nil
}

// Clear implements Store.
func (t *Tree) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[string]*Node)
	t.children = make(map[string]map[string]struct{})
	return nil
}

// Close implements Store. The tree holds no external resources.
func (t *Tree) Close() error {
	return nil
}

// Len returns the number of stored nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
