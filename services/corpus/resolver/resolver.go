// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver answers collection, passage and reference queries over
// an ingested corpus.
//
// # Description
//
// A Resolver owns a collection.Store filled by the ingest pipeline, a
// dispatcher that places textgroups into inventories, and a cache. Every
// query goes through cache.GetOr with a key made of the resolver name,
// the operation and its arguments, so resolvers sharing one cache do not
// see each other's entries. Failed queries are never cached.
//
// The first query parses the configured sources unless the store already
// holds readable texts.
//
// # Thread Safety
//
// Queries are safe for concurrent use. Parse, Flush and Close wait for
// in-flight queries and block new ones while they run.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/nautilus/services/corpus/cache"
	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
	"github.com/AleutianAI/nautilus/services/corpus/ingest"
)

var tracer = otel.Tracer("nautilus.resolver")

// Defaults.
const (
	DefaultName          = "default"
	DefaultReffsTimeout  = 7 * 24 * time.Hour
	DefaultTextCacheSize = 256
)

// Cache operation names.
const (
	opMetadata = "GetMetadata"
	opPassage  = "Passage"
	opSiblings = "Siblings"
	opReffs    = "getReffs"
)

// Resolver is the query façade over an ingested corpus.
type Resolver struct {
	name       string
	sources    []string
	store      collection.Store
	dispatcher *dispatch.Dispatcher
	cache      *cache.Cache
	ownsCache  bool
	ingestCfg  ingest.Config
	logger     *slog.Logger

	timeout      time.Duration
	reffsTimeout time.Duration

	textCacheSize int
	texts         *cache.LRU[string, *citation.Document]

	mu     sync.RWMutex
	parsed bool
	closed bool
	report *ingest.Report
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithName sets the resolver name used in cache keys.
func WithName(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.name = name
		}
	}
}

// WithStore sets the collection store. Defaults to an in-memory tree.
func WithStore(s collection.Store) Option {
	return func(r *Resolver) {
		if s != nil {
			r.store = s
		}
	}
}

// WithDispatcher sets the dispatcher. Defaults to dispatch.Default.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(r *Resolver) {
		if d != nil {
			r.dispatcher = d
		}
	}
}

// WithCache sets a cache that may be shared with other resolvers. The
// resolver does not close it.
func WithCache(c *cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
			r.ownsCache = false
		}
	}
}

// WithOwnedCache sets a cache that the resolver closes on Close.
func WithOwnedCache(c *cache.Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
			r.ownsCache = true
		}
	}
}

// WithIngestConfig sets the pipeline configuration.
func WithIngestConfig(cfg ingest.Config) Option {
	return func(r *Resolver) {
		r.ingestCfg = cfg
	}
}

// WithTimeouts sets the cache lifetime of query results and of reference
// lists. Zero keeps entries until they are cleared.
func WithTimeouts(general, reffs time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = general
		r.reffsTimeout = reffs
	}
}

// WithTextCache keeps up to size parsed documents in memory. A size of
// zero or less disables it.
func WithTextCache(size int) Option {
	return func(r *Resolver) {
		r.textCacheSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver over the given source roots.
//
// Description:
//
//	Without options the resolver keeps its collections in a
//	collection.Tree, caches in an in-memory LRU, dispatches everything
//	into the default inventory and removes empty branches.
//
// Inputs:
//
//	sources - Corpus roots, in priority order.
//	opts - Options.
//
// Outputs:
//
//	*Resolver - The resolver. Nothing is parsed until the first query
//	or an explicit Parse.
func New(sources []string, opts ...Option) *Resolver {
	r := &Resolver{
		name:         DefaultName,
		sources:      append([]string(nil), sources...),
		ingestCfg:    ingest.DefaultConfig(),
		logger:       slog.Default(),
		reffsTimeout: DefaultReffsTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = collection.NewTree()
	}
	if r.dispatcher == nil {
		r.dispatcher = dispatch.Default(dispatch.WithLogger(r.logger))
	}
	if r.cache == nil {
		r.cache = cache.New(cache.NewMemory(0), cache.WithLogger(r.logger))
		r.ownsCache = true
	}
	if r.textCacheSize > 0 {
		r.texts = cache.NewLRU[string, *citation.Document](r.textCacheSize)
	}
	r.logger = r.logger.With(slog.String("resolver", r.name))
	return r
}

// Name returns the resolver name.
func (r *Resolver) Name() string {
	return r.name
}

// Sources returns the corpus roots.
func (r *Resolver) Sources() []string {
	return append([]string(nil), r.sources...)
}

// Store returns the collection store.
func (r *Resolver) Store() collection.Store {
	return r.store
}

// Dispatcher returns the dispatcher.
func (r *Resolver) Dispatcher() *dispatch.Dispatcher {
	return r.dispatcher
}

// Report returns the report of the last parse, or nil.
func (r *Resolver) Report() *ingest.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report
}

// Parse rebuilds the collection hierarchy from the sources.
//
// Description:
//
//	Clears the store, the dispatcher's ownership, the resolver's cache
//	entries and the text cache, then runs the ingest pipeline. A second
//	Parse over the same sources yields the same hierarchy.
//
// Outputs:
//
//	*ingest.Report - What was ingested and what was skipped.
//	error - ErrUndispatched or ingest.ErrStrict (wrapped) when so
//	configured, ErrClosed, or a store failure.
func (r *Resolver) Parse(ctx context.Context) (*ingest.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.parseLocked(ctx)
}

func (r *Resolver) parseLocked(ctx context.Context) (*ingest.Report, error) {
	ctx, span := tracer.Start(ctx, "resolver.Parse",
		trace.WithAttributes(
			attribute.String("resolver.name", r.name),
			attribute.Int("resolver.sources", len(r.sources)),
		),
	)
	defer span.End()

	if err := r.resetLocked(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset failed")
		return nil, err
	}
	report, err := ingest.New(r.store, r.dispatcher, r.ingestCfg, r.logger).Run(ctx, r.sources)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, classify("parse", "", err)
	}
	r.parsed = true
	r.report = report
	span.SetAttributes(attribute.Int("resolver.texts", report.Texts))
	return report, nil
}

// resetLocked drops everything derived from the sources.
func (r *Resolver) resetLocked(ctx context.Context) error {
	r.parsed = false
	r.report = nil
	if r.texts != nil {
		r.texts.Purge()
	}
	if _, err := r.cache.Clear(ctx, r.name); err != nil {
		r.logger.Warn("cache clear failed", slog.String("error", err.Error()))
	}
	r.dispatcher.Reset()
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// Clear removes this resolver's cache entries and parsed documents. The
// collection hierarchy is kept. Queries in flight finish before the
// entries are removed.
//
// Outputs:
//
//	int - Number of cache entries removed.
//	error - ErrClosed or a backend failure.
func (r *Resolver) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if r.texts != nil {
		r.texts.Purge()
	}
	n, err := r.cache.Clear(ctx, r.name)
	if err != nil {
		return n, err
	}
	r.logger.Info("resolver cache cleared", slog.Int("removed", n))
	return n, nil
}

// Flush clears the cache and the collection hierarchy. The next query
// parses the sources again.
func (r *Resolver) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.resetLocked(ctx); err != nil {
		return err
	}
	r.logger.Info("resolver flushed")
	return nil
}

// Close releases the store and, unless it was supplied with WithCache,
// the cache. Safe to call more than once.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	errs := []error{r.store.Close()}
	if r.ownsCache {
		errs = append(errs, r.cache.Close())
	}
	return errors.Join(errs...)
}

// Destroy drops a store that supports it (graph stores remove their named
// graph), then closes the resolver.
func (r *Resolver) Destroy() error {
	type destroyer interface{ Destroy() error }

	r.mu.Lock()
	var err error
	if d, ok := r.store.(destroyer); ok && !r.closed {
		err = d.Destroy()
	}
	r.mu.Unlock()
	return errors.Join(err, r.Close())
}

// read runs fn under the read lock, parsing the sources first if the
// hierarchy is not loaded.
func (r *Resolver) read(ctx context.Context, fn func() error) error {
	for {
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			return ErrClosed
		}
		if r.parsed {
			defer r.mu.RUnlock()
			return fn()
		}
		r.mu.RUnlock()

		if err := r.ensureParsed(ctx); err != nil {
			return err
		}
	}
}

// ensureParsed loads the hierarchy. A store that already holds readable
// texts, such as a persistent graph, is used as it is.
func (r *Resolver) ensureParsed(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.parsed {
		return nil
	}

	readable, err := r.store.ReadableDescendants(ctx, r.dispatcher.Root())
	switch {
	case err == nil && len(readable) > 0:
		r.parsed = true
		r.logger.Info("reusing stored corpus", slog.Int("texts", len(readable)))
		return nil
	case err != nil && !errors.Is(err, collection.ErrUnknownCollection):
		return fmt.Errorf("inspect store: %w", err)
	}

	_, err = r.parseLocked(ctx)
	return err
}

// GetMetadata describes a collection.
//
// Description:
//
//	An empty id describes the inventory root. The result lists the
//	collection's members and its readable descendants.
//
// Outputs:
//
//	*collection.Metadata - The description.
//	error - *Error with CodeUnknownCollection when id is not stored.
func (r *Resolver) GetMetadata(ctx context.Context, id string) (*collection.Metadata, error) {
	var md *collection.Metadata
	err := r.read(ctx, func() error {
		if id == "" {
			id = r.dispatcher.Root()
		}
		key := r.cache.Key(r.name, opMetadata, id)
		var err error
		md, err = cache.GetOr(ctx, r.cache, key, r.timeout, func(ctx context.Context) (*collection.Metadata, error) {
			return collection.Describe(ctx, r.store, id)
		})
		return err
	})
	if err != nil {
		return nil, classify("GetMetadata", id, err)
	}
	return md, nil
}

// InInventory reports whether id belongs to the named inventory.
func (r *Resolver) InInventory(ctx context.Context, id, inventory string) (bool, error) {
	var in bool
	err := r.read(ctx, func() error {
		var err error
		in, err = r.dispatcher.InInventory(ctx, r.store, id, inventory)
		return err
	})
	return in, classify("InInventory", id, err)
}
