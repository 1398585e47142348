// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/internal/corpustest"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
	"github.com/AleutianAI/nautilus/services/corpus/graph"
)

func reasons(r *Report) map[string]string {
	out := make(map[string]string)
	for _, d := range r.Invalid {
		out[d.subject()] = d.Reason
	}
	return out
}

func TestParseGroup(t *testing.T) {
	dir := t.TempDir()
	corpustest.Write(t, dir, corpustest.Scenario())

	g, err := ParseGroup(filepath.Join(dir, "data", "phi1294", DescriptorName))
	require.NoError(t, err)
	assert.Equal(t, corpustest.GroupID, g.ID)
	assert.Equal(t, collection.KindTextGroup, g.Kind)
	assert.Equal(t, "Martial", g.Label("eng"))
}

func TestParseGroup_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, DescriptorName)
	require.NoError(t, os.WriteFile(bad, []byte(`<ti:textgroup xmlns:ti="http://chs.harvard.edu/xmlns/cts" urn="urn:cts:latinLit:a.b"/>`), 0o640))
	_, err := ParseGroup(bad)
	assert.ErrorIs(t, err, ErrDescriptor)

	require.NoError(t, os.WriteFile(bad, []byte(`<ti:textgroup`), 0o640))
	_, err = ParseGroup(bad)
	assert.ErrorIs(t, err, ErrDescriptor)
}

func TestParseWork(t *testing.T) {
	dir := t.TempDir()
	s := corpustest.Scenario()
	corpustest.Write(t, dir, s)

	path := filepath.Join(dir, "data", "phi1294", "phi002", DescriptorName)
	entry, skipped, err := ParseWork(path)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	assert.Equal(t, corpustest.WorkID, entry.Work.ID)
	assert.Equal(t, corpustest.GroupID, entry.Work.Parent)
	assert.Equal(t, "lat", entry.Work.Lang)
	assert.Equal(t, "Epigrammata", entry.Work.Label("lat"))

	require.Len(t, entry.Texts, 2)
	ed, tr := entry.Texts[0], entry.Texts[1]
	assert.Equal(t, corpustest.EditionID, ed.ID)
	assert.Equal(t, collection.KindEdition, ed.Kind)
	assert.Equal(t, "lat", ed.Lang, "edition inherits the work language")
	assert.Equal(t, corpustest.TextPath(dir, s, s.Works[0], s.Works[0].Versions[0]), ed.Path)
	assert.Equal(t, "Epigrammata of Epigrammata", ed.Description[0].Text)

	assert.Equal(t, corpustest.TranslationID, tr.ID)
	assert.Equal(t, collection.KindTranslation, tr.Kind)
	assert.Equal(t, "eng", tr.Lang)
}

func TestParseWork_GroupMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DescriptorName)
	require.NoError(t, os.WriteFile(path, []byte(
		`<ti:work xmlns:ti="http://chs.harvard.edu/xmlns/cts" groupUrn="urn:cts:latinLit:other" urn="urn:cts:latinLit:phi1294.phi002"/>`), 0o640))
	_, _, err := ParseWork(path)
	assert.ErrorIs(t, err, ErrDescriptor)
}

func TestRun_Scenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	corpustest.Write(t, dir, corpustest.Scenario())

	store := collection.NewTree()
	p := New(store, nil, DefaultConfig(), nil)
	report, err := p.Run(ctx, []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 1, report.Works)
	assert.Equal(t, 2, report.Texts)
	assert.Empty(t, report.Invalid)

	readable, err := store.ReadableDescendants(ctx, dispatch.RootID)
	require.NoError(t, err)
	assert.Len(t, readable, 2)

	ed, err := store.Get(ctx, corpustest.EditionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"book", "poem", "line"}, ed.Citation.Names())

	group, err := store.Get(ctx, corpustest.GroupID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.DefaultInventory, group.Parent)
}

func TestRun_InvalidTextsAreSkipped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	g := corpustest.Scenario()
	g.Works[0].Versions = append(g.Works[0].Versions,
		corpustest.Version{Kind: "edition", ID: "missing", Lang: "lat", Label: "Missing", NoFile: true},
		corpustest.Version{Kind: "edition", ID: "nocite", Lang: "lat", Label: "No citation", NoCitation: true},
		corpustest.Version{Kind: "commentary", ID: "broken", Lang: "lat", Label: "Broken", Broken: true},
	)
	corpustest.Write(t, dir, g)

	store := collection.NewTree()
	report, err := New(store, nil, DefaultConfig(), nil).Run(ctx, []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Texts)
	got := reasons(report)
	assert.Equal(t, ReasonMissing, got[corpustest.WorkID+".missing"])
	assert.Equal(t, ReasonNoPassages, got[corpustest.WorkID+".nocite"])
	assert.Equal(t, ReasonUnparseable, got[corpustest.WorkID+".broken"])

	for _, id := range []string{".missing", ".nocite", ".broken"} {
		ok, err := store.Exists(ctx, corpustest.WorkID+id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestRun_StrictFailsOnUnparseable(t *testing.T) {
	dir := t.TempDir()
	g := corpustest.Scenario()
	g.Works[0].Versions = append(g.Works[0].Versions,
		corpustest.Version{Kind: "edition", ID: "broken", Lang: "lat", Broken: true})
	corpustest.Write(t, dir, g)

	cfg := DefaultConfig()
	cfg.Strict = true
	_, err := New(collection.NewTree(), nil, cfg, nil).Run(context.Background(), []string{dir})
	assert.ErrorIs(t, err, ErrStrict)
}

func TestRun_StrictToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	g := corpustest.Scenario()
	g.Works[0].Versions = append(g.Works[0].Versions,
		corpustest.Version{Kind: "edition", ID: "missing", Lang: "lat", NoFile: true})
	corpustest.Write(t, dir, g)

	cfg := DefaultConfig()
	cfg.Strict = true
	report, err := New(collection.NewTree(), nil, cfg, nil).Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Len(t, report.Invalid, 1)
}

func TestRun_PrunesEmptyBranches(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	empty := corpustest.Group{
		ID: "phi0000", Name: "Nobody",
		Works: []corpustest.Work{{ID: "phi001", Title: "Lost", Versions: []corpustest.Version{
			{Kind: "edition", ID: "gone", Lang: "lat", NoFile: true},
		}}},
	}
	corpustest.Write(t, dir, corpustest.Scenario(), empty)

	t.Run("remove empty", func(t *testing.T) {
		store := collection.NewTree()
		report, err := New(store, nil, DefaultConfig(), nil).Run(ctx, []string{dir})
		require.NoError(t, err)
		assert.Contains(t, report.Pruned, "urn:cts:latinLit:phi0000")

		for _, id := range []string{"urn:cts:latinLit:phi0000", "urn:cts:latinLit:phi0000.phi001"} {
			ok, err := store.Exists(ctx, id)
			require.NoError(t, err)
			assert.False(t, ok, id)
		}
		ok, _ := store.Exists(ctx, corpustest.EditionID)
		assert.True(t, ok)
	})

	t.Run("keep empty", func(t *testing.T) {
		store := collection.NewTree()
		report, err := New(store, nil, Config{}, nil).Run(ctx, []string{dir})
		require.NoError(t, err)
		assert.Empty(t, report.Pruned)

		ok, _ := store.Exists(ctx, "urn:cts:latinLit:phi0000.phi001")
		assert.True(t, ok)
	})
}

func TestRun_MergesGroupsAcrossRoots(t *testing.T) {
	ctx := context.Background()
	a, b := t.TempDir(), t.TempDir()

	first := corpustest.Scenario()
	second := corpustest.Scenario()
	second.Name = "Martialis"
	second.Works = []corpustest.Work{{ID: "phi001", Title: "Spectacula", Versions: []corpustest.Version{
		{Kind: "edition", ID: "perseus-lat2", Lang: "lat", Label: "Spectacula", Shape: []int{3}},
	}}}
	corpustest.Write(t, a, first)
	corpustest.Write(t, b, second)

	store := collection.NewTree()
	report, err := New(store, nil, DefaultConfig(), nil).Run(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups, "a group seen twice is dispatched once")
	assert.Equal(t, 3, report.Texts)

	works, err := store.Children(ctx, corpustest.GroupID)
	require.NoError(t, err)
	assert.Len(t, works, 2, "children are unioned")

	g, err := store.Get(ctx, corpustest.GroupID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []collection.Label{{Lang: "eng", Text: "Martial"}, {Lang: "eng", Text: "Martialis"}}, g.Labels)
}

func TestRun_Undispatched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	corpustest.Write(t, dir, corpustest.Scenario())

	newDispatcher := func(t *testing.T) *dispatch.Dispatcher {
		d := dispatch.New(dispatch.WithInventory("greek"))
		require.NoError(t, d.Register("greek", dispatch.IDPrefix("urn:cts:greekLit:")))
		return d
	}

	t.Run("logged", func(t *testing.T) {
		store := collection.NewTree()
		report, err := New(store, newDispatcher(t), Config{}, nil).Run(ctx, []string{dir})
		require.NoError(t, err)
		assert.Equal(t, ReasonUndispatched, reasons(report)[corpustest.GroupID])
		ok, _ := store.Exists(ctx, corpustest.GroupID)
		assert.False(t, ok)
	})

	t.Run("raised", func(t *testing.T) {
		_, err := New(collection.NewTree(), newDispatcher(t), Config{RaiseOnUndispatched: true}, nil).Run(ctx, []string{dir})
		assert.ErrorIs(t, err, dispatch.ErrUndispatched)
	})
}

func TestRun_NamedInventories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	other := corpustest.Group{ID: "phi0959", Name: "Ovid", Works: []corpustest.Work{{
		ID: "phi001", Title: "Amores", Versions: []corpustest.Version{
			{Kind: "edition", ID: "perseus-lat2", Lang: "lat", Label: "Amores", Shape: []int{2, 4}},
		},
	}}}
	corpustest.Write(t, dir, corpustest.Scenario(), other)

	d := dispatch.Default(dispatch.WithInventory("ovid"))
	require.NoError(t, d.Register("ovid", dispatch.IDPrefix("urn:cts:latinLit:phi0959")))

	store := collection.NewTree()
	_, err := New(store, d, DefaultConfig(), nil).Run(ctx, []string{dir})
	require.NoError(t, err)

	in, err := d.InInventory(ctx, store, "urn:cts:latinLit:phi0959.phi001.perseus-lat2", "ovid")
	require.NoError(t, err)
	assert.True(t, in)
	in, err = d.InInventory(ctx, store, corpustest.EditionID, "ovid")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestRun_GraphStoreMatchesTree(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	corpustest.Write(t, dir, corpustest.Scenario())

	tree := collection.NewTree()
	_, err := New(tree, nil, DefaultConfig(), nil).Run(ctx, []string{dir})
	require.NoError(t, err)

	backend := graph.NewBackend(graph.NewMemory(), nil)
	defer backend.Close()
	_, err = New(backend, nil, DefaultConfig(), nil).Run(ctx, []string{dir})
	require.NoError(t, err)

	want, err := tree.Descendants(ctx, dispatch.RootID)
	require.NoError(t, err)
	got, err := backend.Descendants(ctx, dispatch.RootID)
	require.NoError(t, err)
	assert.Equal(t, collection.IDs(want), collection.IDs(got))
}

func TestRun_Workers(t *testing.T) {
	dir := t.TempDir()
	var groups []corpustest.Group
	for i := 0; i < 6; i++ {
		g := corpustest.Scenario()
		g.ID = "phi10" + string(rune('0'+i))
		groups = append(groups, g)
	}
	corpustest.Write(t, dir, groups...)

	for _, workers := range []int{1, 4} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		report, err := New(collection.NewTree(), nil, cfg, nil).Run(context.Background(), []string{dir})
		require.NoError(t, err)
		assert.Equal(t, 12, report.Texts, "workers=%d", workers)
	}
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}
