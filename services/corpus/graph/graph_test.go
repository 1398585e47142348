// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/collection/storetest"
	kv "github.com/AleutianAI/nautilus/services/corpus/storage/badger"
)

// engines returns constructors for every TripleStore engine, each
// producing an empty graph.
func engines() map[string]func(t *testing.T) TripleStore {
	return map[string]func(t *testing.T) TripleStore{
		"memory": func(*testing.T) TripleStore { return NewMemory() },
		"sqlite": func(t *testing.T) TripleStore {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "graph.db"), uuid.NewString())
			require.NoError(t, err)
			return s
		},
		"sqlite-memory": func(t *testing.T) TripleStore {
			s, err := OpenSQLite(context.Background(), ":memory:", "g")
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) TripleStore {
			s, err := OpenBadger(kv.InMemoryConfig(), uuid.NewString())
			require.NoError(t, err)
			return s
		},
	}
}

// chain adds a → b → c → d along "parent" plus a side branch x → b.
func chain(t *testing.T, s TripleStore) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(),
		Triple{"a", PredParent, "b"},
		Triple{"b", PredParent, "c"},
		Triple{"c", PredParent, "d"},
		Triple{"x", PredParent, "b"},
		Triple{"a", PredType, "edition"},
		Triple{"a", PredLabel, "eng\x1fA"},
		Triple{"a", PredLabel, "lat\x1fA"},
	))
}

func TestEngines_Contract(t *testing.T) {
	ctx := context.Background()
	for name, open := range engines() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			chain(t, s)

			objs, err := s.Objects(ctx, "a", PredLabel)
			require.NoError(t, err)
			assert.Equal(t, []string{"eng\x1fA", "lat\x1fA"}, objs)

			subs, err := s.Subjects(ctx, PredParent, "b")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "x"}, subs)

			triples, err := s.Describe(ctx, "a")
			require.NoError(t, err)
			assert.Len(t, triples, 4)

			below, err := s.Closure(ctx, PredParent, "d")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c", "x"}, below)

			below, err = s.Closure(ctx, PredParent, "a")
			require.NoError(t, err)
			assert.Empty(t, below)

			ok, err := s.Reaches(ctx, "a", PredParent, "d")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Reaches(ctx, "a", PredParent, "a")
			require.NoError(t, err)
			assert.False(t, ok, "path length must be at least one")
			ok, err = s.Reaches(ctx, "d", PredParent, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Add(ctx, Triple{"a", PredParent, "b"}), "duplicates are ignored")
			objs, _ = s.Objects(ctx, "a", PredParent)
			assert.Equal(t, []string{"b"}, objs)

			require.NoError(t, s.RemoveSubject(ctx, "a"))
			triples, err = s.Describe(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, triples)
			subs, _ = s.Subjects(ctx, PredParent, "b")
			assert.Equal(t, []string{"x"}, subs, "reverse index is updated")

			require.NoError(t, s.Clear(ctx))
			require.NoError(t, s.Clear(ctx))
			subs, err = s.Subjects(ctx, PredParent, "b")
			require.NoError(t, err)
			assert.Empty(t, subs)
		})
	}
}

func TestEngines_DestroyIdempotent(t *testing.T) {
	for name, open := range engines() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			chain(t, s)
			require.NoError(t, s.Destroy())
			assert.NoError(t, s.Destroy())
			assert.NoError(t, s.Close())

			_, err := s.Objects(context.Background(), "a", PredParent)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestSQLite_GraphsShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	a, err := OpenSQLite(ctx, path, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(ctx, path, "b")
	require.NoError(t, err)

	require.NoError(t, a.Add(ctx, Triple{"s", PredType, "work"}))
	require.NoError(t, b.Add(ctx, Triple{"s", PredType, "edition"}))
	require.NoError(t, b.Destroy())

	objs, err := a.Objects(ctx, "s", PredType)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, objs, "destroying one graph leaves the other")
}

func TestBadger_PersistentReopen(t *testing.T) {
	ctx := context.Background()
	cfg := kv.DefaultConfig(filepath.Join(t.TempDir(), "graph"))
	cfg.GCInterval = 0

	s, err := OpenBadger(cfg, "corpus")
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, Triple{"s", PredType, "work"}))
	require.NoError(t, s.Close())

	s, err = OpenBadger(cfg, "corpus")
	require.NoError(t, err)
	defer s.Close()
	objs, err := s.Objects(ctx, "s", PredType)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, objs)
}

func TestBackend_Conformance(t *testing.T) {
	for name, open := range engines() {
		t.Run(name, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) collection.Store {
				return NewBackend(open(t), nil)
			})
		})
	}
}

// describeCounter counts subjects read back from the wrapped engine.
type describeCounter struct {
	TripleStore
	describes int
}

func (d *describeCounter) Describe(ctx context.Context, subject string) ([]Triple, error) {
	d.describes++
	return d.TripleStore.Describe(ctx, subject)
}

func TestBackend_ReadableDescendantsReadsOnlyTexts(t *testing.T) {
	ctx := context.Background()
	store := &describeCounter{TripleStore: NewMemory()}
	b := NewBackend(store, nil)
	require.NoError(t, b.Put(ctx, storetest.Fixture()...))

	store.describes = 0
	got, err := b.ReadableDescendants(ctx, storetest.Root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"urn:cts:latinLit:g1.w1.co",
		"urn:cts:latinLit:g1.w1.ed",
		"urn:cts:latinLit:g1.w1.tr",
	}, collection.IDs(got))
	assert.Equal(t, 3, store.describes)

	got, err = b.ReadableDescendants(ctx, "urn:cts:latinLit:g2")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = b.ReadableDescendants(ctx, "urn:cts:latinLit:nope")
	assert.ErrorIs(t, err, collection.ErrUnknownCollection)
}

func TestReconstruct_ByKind(t *testing.T) {
	cit := citation.FromLevels([]string{"book", "line"}, []string{"/a[@n=\"$1\"]", "/a[@n=\"$1\"]/b[@n=\"$2\"]"})
	nodes := []*collection.Node{
		{ID: "defaultTic", Kind: collection.KindInventoryRoot},
		{ID: "urn:cts:latinLit:g", Kind: collection.KindTextGroup, Parent: "/default",
			Labels: []collection.Label{{Lang: "lat", Text: "G"}}},
		{ID: "urn:cts:latinLit:g.w", Kind: collection.KindWork, Parent: "urn:cts:latinLit:g", Lang: "lat"},
		{ID: "urn:cts:latinLit:g.w.tr", Kind: collection.KindTranslation, Parent: "urn:cts:latinLit:g.w",
			Lang: "eng", Path: "/x.xml", Citation: cit},
	}
	for _, want := range nodes {
		got, err := Reconstruct(want.ID, Triples(want))
		require.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Parent, got.Parent)
		assert.Equal(t, want.Lang, got.Lang)
		assert.Equal(t, want.Path, got.Path)
		assert.Equal(t, want.Citation.Names(), got.Citation.Names())
		if want.Citation != nil {
			assert.Equal(t, want.Citation.Level(2).Selector, got.Citation.Level(2).Selector)
		}
	}
}

func TestReconstruct_IgnoresFieldsForeignToKind(t *testing.T) {
	got, err := Reconstruct("urn:cts:latinLit:g", []Triple{
		{"urn:cts:latinLit:g", PredType, "textgroup"},
		{"urn:cts:latinLit:g", PredPath, "/stray.xml"},
	})
	require.NoError(t, err)
	assert.Empty(t, got.Path)
}

func TestReconstruct_Errors(t *testing.T) {
	_, err := Reconstruct("x", nil)
	assert.ErrorIs(t, err, collection.ErrUnknownCollection)

	_, err = Reconstruct("x", []Triple{{"x", PredType, "scroll"}})
	assert.ErrorIs(t, err, collection.ErrUnknownType)
}
