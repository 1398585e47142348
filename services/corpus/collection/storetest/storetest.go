// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storetest is a conformance suite for collection.Store
// implementations. Every store runs the same cases, and navigation results
// are compared against the in-memory Tree.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
)

// Identities of the fixture hierarchy.
const (
	Root      = "defaultTic"
	Inventory = "/default"
)

// Fixture returns a hierarchy of Root → Inventory → groups → works →
// texts, parents before children. Group g2's only work has no texts and
// group g3 has no works, so both are empty branches.
func Fixture() []*collection.Node {
	cit := citation.FromLevels(
		[]string{"book", "line"},
		[]string{`/tei:TEI//tei:div[@n="$1"]`, `/tei:TEI//tei:div[@n="$1"]/tei:l[@n="$2"]`},
	)
	nodes := []*collection.Node{
		{ID: Root, Kind: collection.KindInventoryRoot},
		{ID: Inventory, Kind: collection.KindInventoryRoot, Parent: Root, Labels: []collection.Label{{Lang: "eng", Text: "Default collection"}}},
	}
	for g := 1; g <= 3; g++ {
		gid := fmt.Sprintf("urn:cts:latinLit:g%d", g)
		nodes = append(nodes, &collection.Node{
			ID: gid, Kind: collection.KindTextGroup, Parent: Inventory,
			Labels: []collection.Label{{Lang: "eng", Text: fmt.Sprintf("Group %d", g)}},
		})
		if g == 3 {
			continue
		}
		wid := gid + ".w1"
		nodes = append(nodes, &collection.Node{
			ID: wid, Kind: collection.KindWork, Parent: gid, Lang: "lat",
			Labels: []collection.Label{{Lang: "lat", Text: "Opus"}},
		})
		if g == 2 {
			continue
		}
		nodes = append(nodes,
			&collection.Node{
				ID: wid + ".ed", Kind: collection.KindEdition, Parent: wid, Path: "/data/ed.xml", Citation: cit,
				Labels:      []collection.Label{{Lang: "eng", Text: "Edition"}},
				Description: []collection.Label{{Lang: "eng", Text: "An edition"}},
			},
			&collection.Node{
				ID: wid + ".tr", Kind: collection.KindTranslation, Parent: wid, Path: "/data/tr.xml", Citation: cit, Lang: "eng",
				Labels: []collection.Label{{Lang: "eng", Text: "Translation"}},
			},
			&collection.Node{
				ID: wid + ".co", Kind: collection.KindCommentary, Parent: wid, Path: "/data/co.xml", Citation: cit,
			},
		)
	}
	return nodes
}

// Run executes the conformance suite. open must return an empty store;
// the suite closes it.
func Run(t *testing.T, open func(t *testing.T) collection.Store) {
	ctx := context.Background()

	load := func(t *testing.T) collection.Store {
		t.Helper()
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Put(ctx, Fixture()...))
		return s
	}

	reference := collection.NewTree()
	require.NoError(t, reference.Put(ctx, Fixture()...))

	t.Run("get round trip", func(t *testing.T) {
		s := load(t)
		for _, want := range Fixture() {
			got, err := s.Get(ctx, want.ID)
			require.NoError(t, err, want.ID)
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Kind, got.Kind)
			assert.Equal(t, want.Parent, got.Parent)
			assert.Equal(t, want.Lang, got.Lang)
			assert.Equal(t, want.Path, got.Path)
			assert.ElementsMatch(t, want.Labels, got.Labels)
			assert.ElementsMatch(t, want.Description, got.Description)
			assert.Equal(t, want.Citation.Names(), got.Citation.Names())
			assert.Equal(t, want.Citation.Depth(), got.Citation.Depth())
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		s := load(t)
		_, err := s.Get(ctx, "urn:cts:latinLit:nope")
		assert.ErrorIs(t, err, collection.ErrUnknownCollection)

		ok, err := s.Exists(ctx, "urn:cts:latinLit:nope")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Children(ctx, "urn:cts:latinLit:nope")
		assert.ErrorIs(t, err, collection.ErrUnknownCollection)
	})

	t.Run("parent child symmetry", func(t *testing.T) {
		s := load(t)
		for _, n := range Fixture() {
			parent, err := s.Parent(ctx, n.ID)
			require.NoError(t, err)
			if n.Parent == "" {
				assert.Nil(t, parent, n.ID)
			} else {
				require.NotNil(t, parent, n.ID)
				siblings, err := s.Children(ctx, parent.ID)
				require.NoError(t, err)
				assert.Contains(t, collection.IDs(siblings), n.ID)
			}

			children, err := s.Children(ctx, n.ID)
			require.NoError(t, err)
			for _, c := range children {
				p, err := s.Parent(ctx, c.ID)
				require.NoError(t, err)
				require.NotNil(t, p)
				assert.Equal(t, n.ID, p.ID)
			}
		}
	})

	t.Run("equivalent to tree", func(t *testing.T) {
		s := load(t)
		all := collection.IDs(Fixture())
		for _, id := range all {
			wantChildren, _ := reference.Children(ctx, id)
			gotChildren, err := s.Children(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, collection.IDs(wantChildren), collection.IDs(gotChildren), "children of %s", id)

			wantDesc, _ := reference.Descendants(ctx, id)
			gotDesc, err := s.Descendants(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, collection.IDs(wantDesc), collection.IDs(gotDesc), "descendants of %s", id)

			wantRead, _ := reference.ReadableDescendants(ctx, id)
			gotRead, err := s.ReadableDescendants(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, collection.IDs(wantRead), collection.IDs(gotRead), "readable descendants of %s", id)

			for _, anc := range all {
				want, _ := reference.Contains(ctx, id, anc)
				got, err := s.Contains(ctx, id, anc)
				require.NoError(t, err)
				assert.Equal(t, want, got, "contains(%s, %s)", id, anc)
			}
		}
	})

	t.Run("readable descendants of root", func(t *testing.T) {
		s := load(t)
		readable, err := s.ReadableDescendants(ctx, Root)
		require.NoError(t, err)
		assert.Len(t, readable, 3)
		for _, n := range readable {
			assert.True(t, n.Readable())
		}
	})

	t.Run("put merges", func(t *testing.T) {
		s := load(t)
		require.NoError(t, s.Put(ctx, &collection.Node{
			ID: "urn:cts:latinLit:g1", Kind: collection.KindTextGroup, Parent: Inventory,
			Labels: []collection.Label{{Lang: "lat", Text: "Grex"}, {Lang: "eng", Text: "Group 1"}},
		}))
		got, err := s.Get(ctx, "urn:cts:latinLit:g1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []collection.Label{{Lang: "eng", Text: "Group 1"}, {Lang: "lat", Text: "Grex"}}, got.Labels)

		children, err := s.Children(ctx, Inventory)
		require.NoError(t, err)
		assert.Len(t, children, 3)
	})

	t.Run("put rejects bad placement", func(t *testing.T) {
		s := load(t)
		err := s.Put(ctx, &collection.Node{ID: "urn:cts:latinLit:g9.w1", Kind: collection.KindWork, Parent: "urn:cts:latinLit:g9"})
		assert.ErrorIs(t, err, collection.ErrUnknownCollection)

		err = s.Put(ctx, &collection.Node{ID: "urn:cts:latinLit:g2x.w1", Kind: collection.KindWork, Parent: "urn:cts:latinLit:g2"})
		assert.ErrorIs(t, err, collection.ErrIdentity)

		err = s.Put(ctx, &collection.Node{ID: "urn:cts:latinLit:g2.w1.x", Kind: collection.KindEdition, Parent: "urn:cts:latinLit:g2"})
		assert.ErrorIs(t, err, collection.ErrIdentity)
	})

	t.Run("remove subtree", func(t *testing.T) {
		s := load(t)
		require.NoError(t, s.Remove(ctx, "urn:cts:latinLit:g1.w1"))
		require.NoError(t, s.Remove(ctx, "urn:cts:latinLit:g1.w1"), "absent ids are ignored")

		for _, id := range []string{"urn:cts:latinLit:g1.w1", "urn:cts:latinLit:g1.w1.ed", "urn:cts:latinLit:g1.w1.tr"} {
			ok, err := s.Exists(ctx, id)
			require.NoError(t, err)
			assert.False(t, ok, id)
		}
		children, err := s.Children(ctx, "urn:cts:latinLit:g1")
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("prune reaches fixpoint", func(t *testing.T) {
		s := load(t)
		removed, err := collection.Prune(ctx, s, Root)
		require.NoError(t, err)
		assert.Contains(t, removed, "urn:cts:latinLit:g2")
		assert.Contains(t, removed, "urn:cts:latinLit:g3")

		descendants, err := s.Descendants(ctx, Root)
		require.NoError(t, err)
		for _, n := range descendants {
			if n.Readable() {
				continue
			}
			readable, err := s.ReadableDescendants(ctx, n.ID)
			require.NoError(t, err)
			assert.NotEmpty(t, readable, n.ID)
		}

		again, err := collection.Prune(ctx, s, Root)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		s := load(t)
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Clear(ctx))

		ok, err := s.Exists(ctx, Root)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Put(ctx, Fixture()...), "store is reusable after clear")
	})

	t.Run("close twice", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Close())
		assert.NoError(t, s.Close())
	})
}
