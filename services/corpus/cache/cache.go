// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache memoises resolver results behind a pluggable key/value
// backend.
//
// A cached result is keyed by resolver name, operation and arguments.
// Concurrent misses on one key compute once. Failed computations are
// never stored.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a Backend with encoding, request coalescing and metrics.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	backend   Backend
	namespace string
	flight    singleflight.Group
	logger    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for backend warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(c *Cache) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// New creates a Cache over backend. A nil backend caches nothing.
func New(backend Backend, opts ...Option) *Cache {
	if backend == nil {
		backend = Null{}
	}
	c := &Cache{
		backend:   backend,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a key in this cache's namespace.
func (c *Cache) Key(resolver, operation string, args ...any) Key {
	k := NewKey(resolver, operation, args...)
	k.Namespace = c.namespace
	return k
}

// Backend returns the underlying store.
func (c *Cache) Backend() Backend {
	return c.backend
}

// GetOr returns the cached value for key, computing and storing it on a
// miss.
//
// Description:
//
//	A hit decodes the stored value and returns without calling compute.
//	On a miss, concurrent callers for the same key share one compute
//	call; the winner re-checks the backend first so a value stored by a
//	previous flight is reused. A compute error is returned to every
//	waiter and nothing is stored. Backend and codec failures degrade to
//	a miss and are logged, never returned.
//
// Inputs:
//
//	ctx - Passed to the backend and to compute.
//	c - The cache.
//	key - Result identity.
//	ttl - Expiry for a stored result. 0 never expires.
//	compute - Produces the value on a miss.
//
// Outputs:
//
//	T - The cached or computed value.
//	error - compute's error, unchanged.
//
// Thread Safety: Safe for concurrent use.
func GetOr[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "cache.GetOr",
		trace.WithAttributes(attribute.String("cache.operation", key.Operation)),
	)
	defer span.End()

	encoded := key.String()
	if v, ok := lookup[T](ctx, c, encoded); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		recordHit(ctx, key.Operation)
		return v, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	res, err, _ := c.flight.Do(encoded, func() (any, error) {
		if v, ok := lookup[T](ctx, c, encoded); ok {
			recordHit(ctx, key.Operation)
			return v, nil
		}
		start := time.Now()
		v, err := compute(ctx)
		recordMiss(ctx, key.Operation, time.Since(start))
		if err != nil {
			return v, err
		}
		c.store(ctx, encoded, v, ttl)
		return v, nil
	})
	v, _ := res.(T)
	if err != nil {
		span.RecordError(err)
	}
	return v, err
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		recordBackendError(ctx, "get")
		c.logger.Warn("cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		recordBackendError(ctx, "decode")
		c.logger.Warn("cache entry undecodable, recomputing",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return v, false
	}
	return v, true
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		recordBackendError(ctx, "encode")
		c.logger.Warn("cache value not encodable",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		recordBackendError(ctx, "set")
		c.logger.Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// Clear removes every entry written under resolver's name and returns the
// number removed. Entries of other resolvers sharing the backend survive.
func (c *Cache) Clear(ctx context.Context, resolver string) (int, error) {
	n, err := c.backend.DeletePrefix(ctx, ResolverPrefix(c.namespace, resolver))
	if err != nil {
		return n, fmt.Errorf("clear cache for %s: %w", resolver, err)
	}
	c.logger.Debug("cache cleared",
		slog.String("resolver", resolver),
		slog.Int("removed", n))
	return n, nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
