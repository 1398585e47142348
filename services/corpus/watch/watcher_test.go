// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/internal/corpustest"
	"github.com/AleutianAI/nautilus/services/corpus/ingest"
	"github.com/AleutianAI/nautilus/services/corpus/resolver"
)

const testDebounce = 50 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	batches [][]Change
}

func (r *recorder) handle(changes []Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, changes)
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		for _, c := range b {
			out = append(out, c.Path)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func startWatcher(t *testing.T, roots []string, h Handler) *Watcher {
	t.Helper()
	w, err := New(roots, h, Options{Debounce: testDebounce}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DeliversXMLChanges(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "data", "phi1294")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	rec := &recorder{}
	w := startWatcher(t, []string{dir}, rec.handle)
	assert.True(t, w.Watching())

	target := filepath.Join(sub, "__cts__.xml")
	require.NoError(t, os.WriteFile(target, []byte("<a/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(rec.paths()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.paths(), target)
	assert.NotContains(t, rec.paths(), filepath.Join(sub, "notes.txt"))
}

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec.handle)

	target := filepath.Join(dir, "text.xml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("<a/>"), 0o644))
	}

	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{target}, rec.paths())
}

func TestWatcher_StopFlushesPendingBatch(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New([]string{dir}, rec.handle, Options{Debounce: time.Minute}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	target := filepath.Join(dir, "text.xml")
	require.NoError(t, os.WriteFile(target, []byte("<a/>"), 0o644))
	time.Sleep(4 * testDebounce)
	assert.Zero(t, rec.count())

	w.Stop()
	assert.Equal(t, 1, rec.count())
	assert.Contains(t, rec.paths(), target)
}

func TestWatcher_IgnoresHiddenAndSwapFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.xml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml.swp"), []byte("x"), 0o644))
	time.Sleep(5 * testDebounce)
	assert.Zero(t, rec.count())
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec.handle)

	sub := filepath.Join(dir, "new")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)

	target := filepath.Join(sub, "text.xml")
	require.NoError(t, os.WriteFile(target, []byte("<a/>"), 0o644))
	require.Eventually(t, func() bool {
		for _, p := range rec.paths() {
			if p == target {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StartFailsOnMissingRoot(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "absent")}, nil, Options{}, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	assert.False(t, w.Watching())
	w.Stop()
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := startWatcher(t, []string{t.TempDir()}, nil)
	w.Stop()
	w.Stop()
	assert.False(t, w.Watching())
}

func TestDedupe(t *testing.T) {
	now := time.Now()
	got := dedupe([]Change{
		{Path: "a", Op: OpCreate, Time: now},
		{Path: "b", Op: OpWrite, Time: now},
		{Path: "a", Op: OpRemove, Time: now},
	})
	assert.Equal(t, []Change{
		{Path: "a", Op: OpRemove, Time: now},
		{Path: "b", Op: OpWrite, Time: now},
	}, got)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestResolver_ReparsesOnRemoval(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	g := corpustest.Scenario()
	corpustest.Write(t, dir, g)

	r := resolver.New([]string{dir})
	t.Cleanup(func() { _ = r.Close() })
	_, err := r.Parse(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	var last *ingest.Report
	w, err := Resolver(ctx, r, Options{Debounce: testDebounce}, nil, func(report *ingest.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			last = report
		}
	})
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	require.NoError(t, os.Remove(corpustest.TextPath(dir, g, g.Works[0], g.Works[0].Versions[0])))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.Texts == 1
	}, 3*time.Second, 10*time.Millisecond)

	root, err := r.GetMetadata(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{corpustest.TranslationID}, root.ReadableDescendants)
}
