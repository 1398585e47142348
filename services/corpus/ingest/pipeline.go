// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest builds the collection hierarchy from corpus directories.
//
// # Description
//
// A run walks every source root laid out as <root>/data/<group>/<work>/,
// with a __cts__.xml descriptor in each group and work directory, and
// fills a collection.Store. Work happens in three parallel phases
// separated by barriers:
//
//  1. parse textgroup descriptors
//  2. parse work descriptors and derive text paths
//  3. open each text and extract its citation scheme
//
// Workers only read files and build values. All writes to the dispatcher
// and store happen afterwards, in one sequential finalization: merge
// groups seen in several roots, dispatch each group once, insert, remove
// invalid texts, then prune empty branches.
//
// A failure of one item is recorded in the Report and the item is
// skipped. Strict mode turns unexpected parse failures into a failed run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/nautilus/pkg/telemetry"
	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
)

// Reasons recorded for skipped items.
const (
	ReasonMissing      = "is not present"
	ReasonNoPassages   = "has no passages"
	ReasonUnparseable  = "does not accept parsing"
	ReasonDescriptor   = "has an invalid descriptor"
	ReasonUndispatched = "was not dispatched"
	ReasonPlacement    = "does not fit its parent"
)

// ErrStrict wraps the first item failure of a strict run.
var ErrStrict = errors.New("ingestion failed in strict mode")

// Config configures a Pipeline.
type Config struct {
	// Workers bounds each phase's parallelism. 0 uses DefaultWorkers.
	Workers int

	// RemoveEmpty prunes branches without readable descendants.
	RemoveEmpty bool

	// RaiseOnUndispatched fails the run when a group is not dispatched.
	// Otherwise the group is logged and skipped.
	RaiseOnUndispatched bool

	// Strict fails the run on the first unexpected parse failure.
	// Missing files and texts without passages are never fatal.
	Strict bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{RemoveEmpty: true}
}

// DefaultWorkers is one less than the available parallelism, minimum 1.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// Diagnostic describes one skipped item.
type Diagnostic struct {
	ID     string
	Path   string
	Phase  string
	Reason string
	Err    error
}

func (d Diagnostic) subject() string {
	if d.ID == "" {
		return d.Path
	}
	return d.ID
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s %s: %v", d.subject(), d.Reason, d.Err)
	}
	return d.subject() + " " + d.Reason
}

// Report summarises a run.
type Report struct {
	Groups   int
	Works    int
	Texts    int
	Invalid  []Diagnostic
	Pruned   []string
	Duration time.Duration
}

// Pipeline ingests source roots into a store.
//
// Thread Safety: A Pipeline runs one ingestion at a time; callers
// serialise Run.
type Pipeline struct {
	store      collection.Store
	dispatcher *dispatch.Dispatcher
	cfg        Config
	logger     *slog.Logger
}

// New creates a Pipeline. A nil dispatcher uses dispatch.Default; a nil
// logger uses slog.Default.
func New(store collection.Store, dispatcher *dispatch.Dispatcher, cfg Config, logger *slog.Logger) *Pipeline {
	if dispatcher == nil {
		dispatcher = dispatch.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	return &Pipeline{store: store, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Dispatcher returns the dispatcher used for placement.
func (p *Pipeline) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

type groupResult struct {
	path string
	node *collection.Node
}

type workResult struct {
	path  string
	entry *WorkEntry
}

type textResult struct {
	node  *collection.Node
	valid bool
}

// run collects per-item diagnostics from concurrent workers.
type run struct {
	p       *Pipeline
	mu      sync.Mutex
	invalid []Diagnostic
}

func (r *run) record(d Diagnostic) {
	r.mu.Lock()
	r.invalid = append(r.invalid, d)
	r.mu.Unlock()

	ingestItems.WithLabelValues(d.Phase, "invalid").Inc()
	attrs := []any{
		slog.String("phase", d.Phase),
		slog.String("path", d.Path),
	}
	if d.Err != nil {
		attrs = append(attrs, slog.String("error", d.Err.Error()))
	}
	r.p.logger.Error(d.subject()+" "+d.Reason, attrs...)
}

// Run ingests every source root into the store.
//
// Description:
//
//	Runs the three parse phases and then finalizes. Existing store
//	content is kept and merged into; callers that want a fresh tree
//	clear the store first.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	roots - Source directories, in priority order.
//
// Outputs:
//
//	*Report - What was ingested and what was skipped.
//	error - ErrStrict (wrapped) in strict mode, dispatch.ErrUndispatched
//	(wrapped) when RaiseOnUndispatched is set, or a store failure.
func (p *Pipeline) Run(ctx context.Context, roots []string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "ingest.Run",
		trace.WithAttributes(
			attribute.Int("ingest.roots", len(roots)),
			attribute.Int("ingest.workers", p.cfg.Workers),
		),
	)
	defer span.End()

	start := time.Now()
	r := &run{p: p}

	groups, err := p.parseGroups(ctx, r, roots)
	if err != nil {
		return p.fail(span, err)
	}
	works, err := p.parseWorks(ctx, r, groups)
	if err != nil {
		return p.fail(span, err)
	}
	texts, err := p.parseTexts(ctx, r, works)
	if err != nil {
		return p.fail(span, err)
	}
	report, err := p.finalize(ctx, r, groups, works, texts)
	if err != nil {
		return p.fail(span, err)
	}

	report.Duration = time.Since(start)
	sort.Slice(report.Invalid, func(i, j int) bool {
		if report.Invalid[i].ID != report.Invalid[j].ID {
			return report.Invalid[i].ID < report.Invalid[j].ID
		}
		return report.Invalid[i].Path < report.Invalid[j].Path
	})
	span.SetAttributes(
		attribute.Int("ingest.texts", report.Texts),
		attribute.Int("ingest.invalid", len(report.Invalid)),
	)
	telemetry.LoggerWithTrace(ctx, p.logger).Info("corpus ingested",
		slog.Int("groups", report.Groups),
		slog.Int("works", report.Works),
		slog.Int("texts", report.Texts),
		slog.Int("invalid", len(report.Invalid)),
		slog.Int("pruned", len(report.Pruned)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (p *Pipeline) fail(span trace.Span, err error) (*Report, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "ingestion failed")
	return nil, err
}

// phase runs fn over n items on a bounded pool and waits for all of them.
func (p *Pipeline) phase(ctx context.Context, name string, n int, fn func(ctx context.Context, i int) error) error {
	ctx, span := tracer.Start(ctx, "ingest.phase."+name,
		trace.WithAttributes(attribute.Int("ingest.items", n)),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		ingestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(gCtx, i)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	return ctx.Err()
}

// strict converts an unexpected item failure into a run failure when
// configured.
func (p *Pipeline) strict(d Diagnostic) error {
	if !p.cfg.Strict {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStrict, d)
}

func (p *Pipeline) parseGroups(ctx context.Context, r *run, roots []string) ([]groupResult, error) {
	paths, err := groupDescriptors(roots)
	if err != nil {
		return nil, err
	}
	results := make([]groupResult, len(paths))
	err = p.phase(ctx, phaseGroups, len(paths), func(_ context.Context, i int) error {
		node, err := ParseGroup(paths[i])
		if err != nil {
			d := Diagnostic{Path: paths[i], Phase: phaseGroups, Reason: ReasonDescriptor, Err: err}
			r.record(d)
			return p.strict(d)
		}
		ingestItems.WithLabelValues(phaseGroups, "ok").Inc()
		results[i] = groupResult{path: paths[i], node: node}
		return nil
	})
	return compact(results, func(g groupResult) bool { return g.node != nil }), err
}

func (p *Pipeline) parseWorks(ctx context.Context, r *run, groups []groupResult) ([]workResult, error) {
	var paths []string
	for _, g := range groups {
		found, err := workDescriptors(g.path)
		if err != nil {
			return nil, fmt.Errorf("list works of %s: %w", g.node.ID, err)
		}
		paths = append(paths, found...)
	}

	results := make([]workResult, len(paths))
	err := p.phase(ctx, phaseWorks, len(paths), func(_ context.Context, i int) error {
		entry, skipped, err := ParseWork(paths[i])
		if err != nil {
			d := Diagnostic{Path: paths[i], Phase: phaseWorks, Reason: ReasonDescriptor, Err: err}
			r.record(d)
			return p.strict(d)
		}
		for _, id := range skipped {
			r.record(Diagnostic{ID: id, Path: paths[i], Phase: phaseWorks, Reason: ReasonDescriptor})
		}
		ingestItems.WithLabelValues(phaseWorks, "ok").Inc()
		results[i] = workResult{path: paths[i], entry: entry}
		return nil
	})
	return compact(results, func(w workResult) bool { return w.entry != nil }), err
}

func (p *Pipeline) parseTexts(ctx context.Context, r *run, works []workResult) ([]textResult, error) {
	var texts []*collection.Node
	for _, w := range works {
		texts = append(texts, w.entry.Texts...)
	}

	results := make([]textResult, len(texts))
	err := p.phase(ctx, phaseTexts, len(texts), func(_ context.Context, i int) error {
		t := texts[i]
		results[i] = textResult{node: t}

		doc, err := citation.Open(t.Path)
		switch {
		case err == nil:
			t.Citation = doc.Citation()
			results[i].valid = true
			ingestItems.WithLabelValues(phaseTexts, "ok").Inc()
			return nil
		case errors.Is(err, fs.ErrNotExist):
			r.record(Diagnostic{ID: t.ID, Path: t.Path, Phase: phaseTexts, Reason: ReasonMissing})
			return nil
		case errors.Is(err, citation.ErrNoCitation):
			r.record(Diagnostic{ID: t.ID, Path: t.Path, Phase: phaseTexts, Reason: ReasonNoPassages})
			return nil
		default:
			d := Diagnostic{ID: t.ID, Path: t.Path, Phase: phaseTexts, Reason: ReasonUnparseable, Err: err}
			r.record(d)
			return p.strict(d)
		}
	})
	return results, err
}

// finalize applies all parsed results to the dispatcher and store.
func (p *Pipeline) finalize(ctx context.Context, r *run, groups []groupResult, works []workResult, texts []textResult) (*Report, error) {
	ctx, span := tracer.Start(ctx, "ingest.phase."+phaseFinalize)
	defer span.End()
	start := time.Now()
	defer func() {
		ingestDuration.WithLabelValues(phaseFinalize).Observe(time.Since(start).Seconds())
	}()

	report := &Report{}
	if err := p.store.Put(ctx, p.dispatcher.Nodes()...); err != nil {
		return nil, fmt.Errorf("insert inventories: %w", err)
	}

	// Merge groups seen in several roots; the first path wins for
	// dispatch.
	merged := make(map[string]groupResult)
	var order []string
	for _, g := range groups {
		if prev, ok := merged[g.node.ID]; ok {
			prev.node.Merge(g.node)
			continue
		}
		merged[g.node.ID] = g
		order = append(order, g.node.ID)
	}

	placed := make(map[string]bool)
	for _, id := range order {
		g := merged[id]
		if _, err := p.dispatcher.Dispatch(g.node, g.path); err != nil {
			d := Diagnostic{ID: id, Path: g.path, Phase: phaseFinalize, Reason: ReasonUndispatched, Err: err}
			r.record(d)
			if p.cfg.RaiseOnUndispatched {
				return nil, err
			}
			continue
		}
		if err := p.store.Put(ctx, g.node); err != nil {
			return nil, fmt.Errorf("insert %s: %w", id, err)
		}
		placed[id] = true
		report.Groups++
	}

	for _, w := range works {
		if !placed[w.entry.Work.Parent] {
			continue
		}
		ok, err := p.put(ctx, r, w.entry.Work, w.path)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Works++
		}
	}

	var invalid []string
	for _, t := range texts {
		if !t.valid {
			invalid = append(invalid, t.node.ID)
			continue
		}
		ok, err := p.store.Exists(ctx, t.node.Parent)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = p.put(ctx, r, t.node, t.node.Path)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Texts++
		}
	}

	// Invalid texts may survive from an earlier run into a persistent
	// store.
	for _, id := range invalid {
		if err := p.store.Remove(ctx, id); err != nil {
			return nil, fmt.Errorf("remove invalid %s: %w", id, err)
		}
	}

	if p.cfg.RemoveEmpty {
		pruned, err := collection.Prune(ctx, p.store, p.dispatcher.Root())
		if err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
		report.Pruned = pruned
		ingestPruned.Add(float64(len(pruned)))
	}

	report.Invalid = r.invalid
	ingestItems.WithLabelValues(phaseFinalize, "ok").Add(float64(report.Texts))
	return report, nil
}

// put inserts one node, recording a placement error as a diagnostic.
// It reports whether the node was inserted.
func (p *Pipeline) put(ctx context.Context, r *run, n *collection.Node, path string) (bool, error) {
	err := p.store.Put(ctx, n)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, collection.ErrIdentity), errors.Is(err, collection.ErrUnknownCollection):
		r.record(Diagnostic{ID: n.ID, Path: path, Phase: phaseFinalize, Reason: ReasonPlacement, Err: err})
		return false, nil
	default:
		return false, fmt.Errorf("insert %s: %w", n.ID, err)
	}
}

func compact[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
