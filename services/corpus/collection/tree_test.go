// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/collection/storetest"
)

func TestTree_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) collection.Store {
		return collection.NewTree()
	})
}

func TestKindFromType(t *testing.T) {
	for _, k := range []collection.Kind{
		collection.KindInventoryRoot,
		collection.KindTextGroup,
		collection.KindWork,
		collection.KindEdition,
		collection.KindTranslation,
		collection.KindCommentary,
	} {
		t.Run(k.String(), func(t *testing.T) {
			got, err := collection.KindFromType(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, got)
		})
	}

	_, err := collection.KindFromType("unknown")
	assert.ErrorIs(t, err, collection.ErrUnknownType)
	_, err = collection.KindFromType("citation")
	assert.ErrorIs(t, err, collection.ErrUnknownType)
}

func TestKind_Readable(t *testing.T) {
	assert.False(t, collection.KindInventoryRoot.Readable())
	assert.False(t, collection.KindTextGroup.Readable())
	assert.False(t, collection.KindWork.Readable())
	assert.True(t, collection.KindEdition.Readable())
	assert.True(t, collection.KindTranslation.Readable())
	assert.True(t, collection.KindCommentary.Readable())
	assert.Equal(t, "unknown", collection.Kind(42).String())
}

func TestNode_Merge(t *testing.T) {
	n := &collection.Node{ID: "g", Labels: []collection.Label{{Lang: "lat", Text: "A"}}}
	n.Merge(&collection.Node{
		ID:     "g",
		Labels: []collection.Label{{Lang: "eng", Text: "B"}, {Lang: "lat", Text: "A"}},
		Lang:   "lat",
		Path:   "/x.xml",
	})

	assert.Equal(t, []collection.Label{{Lang: "eng", Text: "B"}, {Lang: "lat", Text: "A"}}, n.Labels)
	assert.Equal(t, "lat", n.Lang)
	assert.Equal(t, "/x.xml", n.Path)
	assert.Equal(t, "B", n.Label("eng"))
	assert.Equal(t, "B", n.Label("fre"))
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	tree := collection.NewTree()
	require.NoError(t, tree.Put(ctx, storetest.Fixture()...))

	md, err := collection.Describe(ctx, tree, "urn:cts:latinLit:g1.w1")
	require.NoError(t, err)
	assert.Equal(t, "work", md.Kind)
	assert.Equal(t, "urn:cts:latinLit:g1", md.Parent)
	assert.False(t, md.Readable)
	assert.ElementsMatch(t, []string{
		"urn:cts:latinLit:g1.w1.co",
		"urn:cts:latinLit:g1.w1.ed",
		"urn:cts:latinLit:g1.w1.tr",
	}, md.MemberIDs())
	assert.Len(t, md.ReadableDescendants, 3)

	text, err := collection.Describe(ctx, tree, "urn:cts:latinLit:g1.w1.ed")
	require.NoError(t, err)
	assert.True(t, text.Readable)
	assert.Equal(t, []string{"book", "line"}, text.Citation)
	assert.Empty(t, text.Members)

	_, err = collection.Describe(ctx, tree, "urn:cts:latinLit:zz")
	assert.ErrorIs(t, err, collection.ErrUnknownCollection)
}

func TestView(t *testing.T) {
	ctx := context.Background()
	tree := collection.NewTree()
	require.NoError(t, tree.Put(ctx, storetest.Fixture()...))

	work, err := collection.Resolve(ctx, tree, "urn:cts:latinLit:g1.w1")
	require.NoError(t, err)
	assert.Equal(t, collection.KindWork, work.Kind)

	members, err := work.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 3)
	for _, m := range members {
		p, err := m.ParentView(ctx)
		require.NoError(t, err)
		assert.Equal(t, work.ID, p.ID)
	}

	root, err := collection.Resolve(ctx, tree, storetest.Root)
	require.NoError(t, err)
	p, err := root.ParentView(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	all, err := root.Descendants(ctx)
	require.NoError(t, err)
	readable, err := root.ReadableDescendants(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(storetest.Fixture())-1)
	assert.Len(t, readable, 3)
}

func TestValidate(t *testing.T) {
	inv := &collection.Node{ID: "/default", Kind: collection.KindInventoryRoot}
	group := &collection.Node{ID: "urn:cts:x:g", Kind: collection.KindTextGroup, Parent: inv.ID}

	assert.NoError(t, collection.Validate(nil, inv))
	assert.NoError(t, collection.Validate(inv, group))
	assert.ErrorIs(t, collection.Validate(nil, group), collection.ErrIdentity)
	assert.ErrorIs(t, collection.Validate(group, &collection.Node{ID: "urn:cts:x:h.w", Kind: collection.KindWork}), collection.ErrIdentity)
	assert.ErrorIs(t, collection.Validate(group, &collection.Node{ID: "urn:cts:x:g.w"}), collection.ErrIdentity)
}

// countingStore counts the navigation calls Prune makes.
type countingStore struct {
	collection.Store
	descendants int
	readable    int
}

func (c *countingStore) Descendants(ctx context.Context, id string) ([]*collection.Node, error) {
	c.descendants++
	return c.Store.Descendants(ctx, id)
}

func (c *countingStore) ReadableDescendants(ctx context.Context, id string) ([]*collection.Node, error) {
	c.readable++
	return c.Store.ReadableDescendants(ctx, id)
}

func TestPrune_OneListingPerPass(t *testing.T) {
	ctx := context.Background()
	tree := collection.NewTree()
	require.NoError(t, tree.Put(ctx, storetest.Fixture()...))
	s := &countingStore{Store: tree}

	removed, err := collection.Prune(ctx, s, storetest.Root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"urn:cts:latinLit:g2", "urn:cts:latinLit:g3"}, removed)
	assert.Equal(t, 2, s.descendants)
	assert.Zero(t, s.readable)

	ok, err := tree.Exists(ctx, "urn:cts:latinLit:g1.w1")
	require.NoError(t, err)
	assert.True(t, ok)
}
