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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
)

var tracer = otel.Tracer("nautilus.graph")

// field separates the parts of a composite object (language and text of
// a label, level, name and selector of a citation level).
const field = "\x1f"

// Backend implements collection.Store over a TripleStore.
//
// Description:
//
//	Put writes one subject per node. Get reads the subject's triples and
//	rebuilds the node from its stored type tag. Descendants and
//	containment are answered by the engine's closure queries on the
//	"parent" predicate.
//
// Thread Safety: Readers are concurrent. Writers are serialised by an
// internal mutex so a merge cannot interleave with another write.
type Backend struct {
	store  TripleStore
	logger *slog.Logger
	mu     sync.Mutex
}

// NewBackend wraps store. A nil logger uses slog.Default.
func NewBackend(store TripleStore, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{store: store, logger: logger}
}

// Triples returns the triples that represent n.
func Triples(n *collection.Node) []Triple {
	out := []Triple{{Subject: n.ID, Predicate: PredType, Object: n.Kind.String()}}
	add := func(p, o string) {
		out = append(out, Triple{Subject: n.ID, Predicate: p, Object: o})
	}
	if n.Parent != "" {
		add(PredParent, n.Parent)
	}
	for _, l := range n.Labels {
		add(PredLabel, l.Lang+field+l.Text)
	}
	for _, l := range n.Description {
		add(PredDescription, l.Lang+field+l.Text)
	}
	if n.Lang != "" {
		add(PredLang, n.Lang)
	}
	if n.Path != "" {
		add(PredPath, n.Path)
	}
	for i, lvl := range n.Citation.Levels() {
		add(PredCitation, fmt.Sprintf("%03d%s%s%s%s", i+1, field, lvl.Name, field, lvl.Selector))
	}
	return out
}

// Reconstruct rebuilds a node from its triples.
//
// Description:
//
//	The "type" triple selects the kind. Each kind reads only the
//	predicates it carries: containers have labels and a parent, works
//	add a language, readable texts add language, path and citation.
//
// Outputs:
//
//	*collection.Node - The node.
//	error - collection.ErrUnknownCollection without a type triple,
//	collection.ErrUnknownType for an unrecognised tag.
func Reconstruct(id string, triples []Triple) (*collection.Node, error) {
	by := make(map[string][]string)
	for _, t := range triples {
		by[t.Predicate] = append(by[t.Predicate], t.Object)
	}
	types := by[PredType]
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: %s", collection.ErrUnknownCollection, id)
	}
	kind, err := collection.KindFromType(types[0])
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", id, err)
	}

	n := &collection.Node{ID: id, Kind: kind}
	if parents := by[PredParent]; len(parents) > 0 {
		n.Parent = parents[0]
	}
	n.Labels = labels(by[PredLabel])
	n.Description = labels(by[PredDescription])

	switch kind {
	case collection.KindInventoryRoot, collection.KindTextGroup:
	case collection.KindWork:
		n.Lang = first(by[PredLang])
	case collection.KindEdition, collection.KindTranslation, collection.KindCommentary:
		n.Lang = first(by[PredLang])
		n.Path = first(by[PredPath])
		n.Citation = citationFrom(by[PredCitation])
	}
	return n, nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sort.Strings(values)
	return values[0]
}

func labels(values []string) []collection.Label {
	if len(values) == 0 {
		return nil
	}
	out := make([]collection.Label, 0, len(values))
	for _, v := range values {
		lang, text, _ := strings.Cut(v, field)
		out = append(out, collection.Label{Lang: lang, Text: text})
	}
	collection.SortLabels(out)
	return out
}

func citationFrom(values []string) *citation.Citation {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	names := make([]string, 0, len(values))
	selectors := make([]string, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, field, 3)
		if len(parts) != 3 {
			continue
		}
		if _, err := strconv.Atoi(parts[0]); err != nil {
			continue
		}
		names = append(names, parts[1])
		selectors = append(selectors, parts[2])
	}
	return citation.FromLevels(names, selectors)
}

// Get implements collection.Store.
func (b *Backend) Get(ctx context.Context, id string) (*collection.Node, error) {
	triples, err := b.store.Describe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", id, err)
	}
	return Reconstruct(id, triples)
}

// Exists implements collection.Store.
func (b *Backend) Exists(ctx context.Context, id string) (bool, error) {
	types, err := b.store.Objects(ctx, id, PredType)
	if err != nil {
		return false, err
	}
	return len(types) > 0, nil
}

// Children implements collection.Store.
func (b *Backend) Children(ctx context.Context, id string) ([]*collection.Node, error) {
	if err := b.mustExist(ctx, id); err != nil {
		return nil, err
	}
	ids, err := b.store.Subjects(ctx, PredParent, id)
	if err != nil {
		return nil, err
	}
	return b.getAll(ctx, ids)
}

// Parent implements collection.Store.
func (b *Backend) Parent(ctx context.Context, id string) (*collection.Node, error) {
	if err := b.mustExist(ctx, id); err != nil {
		return nil, err
	}
	parents, err := b.store.Objects(ctx, id, PredParent)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, nil
	}
	return b.Get(ctx, parents[0])
}

// Descendants implements collection.Store.
func (b *Backend) Descendants(ctx context.Context, id string) ([]*collection.Node, error) {
	ctx, span := tracer.Start(ctx, "graph.Descendants",
		trace.WithAttributes(attribute.String("graph.subject", id)),
	)
	defer span.End()

	if err := b.mustExist(ctx, id); err != nil {
		return nil, err
	}
	ids, err := b.store.Closure(ctx, PredParent, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("closure of %s: %w", id, err)
	}
	span.SetAttributes(attribute.Int("graph.descendants", len(ids)))
	return b.getAll(ctx, ids)
}

var readableKinds = []collection.Kind{
	collection.KindEdition,
	collection.KindTranslation,
	collection.KindCommentary,
}

// ReadableDescendants implements collection.Store.
//
// Only readable subjects are described: the closure is intersected with
// the subjects of each readable type before any node is read back.
func (b *Backend) ReadableDescendants(ctx context.Context, id string) ([]*collection.Node, error) {
	if err := b.mustExist(ctx, id); err != nil {
		return nil, err
	}
	below, err := b.store.Closure(ctx, PredParent, id)
	if err != nil {
		return nil, fmt.Errorf("closure of %s: %w", id, err)
	}
	if len(below) == 0 {
		return nil, nil
	}
	inside := make(map[string]struct{}, len(below))
	for _, s := range below {
		inside[s] = struct{}{}
	}

	readable := make(map[string]struct{})
	for _, k := range readableKinds {
		subjects, err := b.store.Subjects(ctx, PredType, k.String())
		if err != nil {
			return nil, err
		}
		for _, s := range subjects {
			if _, ok := inside[s]; ok {
				readable[s] = struct{}{}
			}
		}
	}
	return b.getAll(ctx, sortedKeys(readable))
}

// Contains implements collection.Store.
func (b *Backend) Contains(ctx context.Context, id, ancestor string) (bool, error) {
	return b.store.Reaches(ctx, id, PredParent, ancestor)
}

// Put implements collection.Store.
func (b *Backend) Put(ctx context.Context, nodes ...*collection.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, n := range nodes {
		existing, err := b.Get(ctx, n.ID)
		if err != nil && !errors.Is(err, collection.ErrUnknownCollection) {
			return fmt.Errorf("put %s: %w", n.ID, err)
		}
		if err == nil {
			existing.Merge(n)
			if err := b.store.RemoveSubject(ctx, n.ID); err != nil {
				return fmt.Errorf("rewrite %s: %w", n.ID, err)
			}
			if err := b.store.Add(ctx, Triples(existing)...); err != nil {
				return fmt.Errorf("rewrite %s: %w", n.ID, err)
			}
			continue
		}

		var parent *collection.Node
		if n.Parent != "" {
			parent, err = b.Get(ctx, n.Parent)
			if err != nil {
				return fmt.Errorf("put %s: parent %w", n.ID, err)
			}
		}
		if err := collection.Validate(parent, n); err != nil {
			return err
		}
		if err := b.store.Add(ctx, Triples(n)...); err != nil {
			return fmt.Errorf("put %s: %w", n.ID, err)
		}
	}
	return nil
}

// Remove implements collection.Store.
func (b *Backend) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ok, err := b.Exists(ctx, id)
	if err != nil || !ok {
		return err
	}
	below, err := b.store.Closure(ctx, PredParent, id)
	if err != nil {
		return fmt.Errorf("closure of %s: %w", id, err)
	}
	for _, s := range append(below, id) {
		if err := b.store.RemoveSubject(ctx, s); err != nil {
			return fmt.Errorf("remove %s: %w", s, err)
		}
	}
	b.logger.Debug("graph subtree removed",
		slog.String("id", id),
		slog.Int("subjects", len(below)+1))
	return nil
}

// Clear implements collection.Store.
func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Clear(ctx)
}

// Close implements collection.Store.
func (b *Backend) Close() error {
	return b.store.Close()
}

// Destroy drops the graph and releases the engine.
func (b *Backend) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Destroy()
}

// TripleStore returns the engine.
func (b *Backend) TripleStore() TripleStore {
	return b.store
}

func (b *Backend) mustExist(ctx context.Context, id string) error {
	ok, err := b.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", collection.ErrUnknownCollection, id)
	}
	return nil
}

func (b *Backend) getAll(ctx context.Context, ids []string) ([]*collection.Node, error) {
	out := make([]*collection.Node, 0, len(ids))
	for _, id := range ids {
		n, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	collection.SortNodes(out)
	return out, nil
}
