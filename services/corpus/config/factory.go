// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/nautilus/pkg/logging"
	"github.com/AleutianAI/nautilus/services/corpus/cache"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
	"github.com/AleutianAI/nautilus/services/corpus/graph"
	"github.com/AleutianAI/nautilus/services/corpus/ingest"
	"github.com/AleutianAI/nautilus/services/corpus/resolver"
	kv "github.com/AleutianAI/nautilus/services/corpus/storage/badger"
)

// NewLogger builds the logger described by cfg.
func NewLogger(cfg LogConfig, service string) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: service,
		JSON:    cfg.JSON,
	}), nil
}

// OpenCache opens the configured cache backend.
func OpenCache(cfg CacheConfig, logger *slog.Logger) (*cache.Cache, error) {
	var backend cache.Backend
	switch cfg.Backend {
	case CacheMemory, "":
		backend = cache.NewMemory(cfg.Capacity)
	case CacheNone:
		backend = cache.Null{}
	case CacheBadger:
		kvCfg := kv.DefaultConfig(cfg.Path)
		kvCfg.Logger = logger
		b, err := cache.OpenBadger(kvCfg)
		if err != nil {
			return nil, err
		}
		backend = b
	case CacheLevelDB:
		l, err := cache.OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = l
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", ErrInvalid, cfg.Backend)
	}
	return cache.New(backend, cache.WithLogger(logger)), nil
}

// OpenStore opens the configured collection store.
//
// Description:
//
//	"tree" is the in-memory collection tree. The graph engines store
//	the hierarchy as triples in a graph named cfg.Name, or a random
//	name when unset. NewResolver fills cfg.Name with the resolver name
//	so a persistent store finds its graph again on the next start.
func OpenStore(ctx context.Context, cfg GraphConfig, logger *slog.Logger) (collection.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = uuid.NewString()
		if cfg.DSN != "" && (cfg.Engine == EngineSQLite || cfg.Engine == EngineBadger) {
			logger.Warn("persistent graph store has no graph name, using a random one",
				slog.String("engine", cfg.Engine),
				slog.String("graph", name))
		}
	}

	var triples graph.TripleStore
	switch cfg.Engine {
	case EngineTree, "":
		return collection.NewTree(), nil
	case EngineMemory:
		triples = graph.NewMemory()
	case EngineSQLite:
		s, err := graph.OpenSQLite(ctx, cfg.DSN, name)
		if err != nil {
			return nil, err
		}
		triples = s
	case EngineBadger:
		kvCfg := kv.DefaultConfig(cfg.DSN)
		kvCfg.Logger = logger
		b, err := graph.OpenBadger(kvCfg, name)
		if err != nil {
			return nil, err
		}
		triples = b
	default:
		return nil, fmt.Errorf("%w: unknown graph engine %q", ErrInvalid, cfg.Engine)
	}
	logger.Debug("graph store opened",
		slog.String("engine", cfg.Engine),
		slog.String("graph", name))
	return graph.NewBackend(triples, logger), nil
}

// NewDispatcher builds the configured inventory hierarchy and rules.
// Rules are registered in the order inventories are listed.
func NewDispatcher(cfg DispatchConfig, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	opts := []dispatch.Option{dispatch.WithRoot(cfg.Root), dispatch.WithLogger(logger)}
	if cfg.DefaultInventory != "" {
		opts = append(opts, dispatch.WithDefault(cfg.DefaultInventory, labels(cfg.DefaultLabel)...))
	}
	for _, inv := range cfg.Inventories {
		if inv.Name == cfg.DefaultInventory {
			continue
		}
		opts = append(opts, dispatch.WithInventory(inv.Name, labels(inv.Label)...))
	}
	d := dispatch.New(opts...)

	for _, inv := range cfg.Inventories {
		var preds []dispatch.Predicate
		if len(inv.IDPrefixes) > 0 {
			preds = append(preds, dispatch.IDPrefix(inv.IDPrefixes...))
		}
		if len(inv.PathGlobs) > 0 {
			preds = append(preds, dispatch.PathGlob(inv.PathGlobs...))
		}
		if len(preds) == 0 {
			continue
		}
		if err := d.Register(inv.Name, dispatch.Any(preds...)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func labels(text string) []collection.Label {
	if text == "" {
		return nil
	}
	return []collection.Label{{Lang: dispatch.DefaultLang, Text: text}}
}

// IngestConfig returns the pipeline configuration.
func (c Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Workers:             c.Workers,
		RemoveEmpty:         c.RemoveEmpty,
		RaiseOnUndispatched: c.RaiseOnUndispatched,
		Strict:              c.Strict,
	}
}

// NewResolver builds a resolver with its own cache and store. Closing
// the resolver closes both.
func NewResolver(ctx context.Context, cfg Config, logger *slog.Logger) (*resolver.Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := OpenCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	graphCfg := cfg.Graph
	if graphCfg.Name == "" {
		graphCfg.Name = cfg.Name
	}
	store, err := OpenStore(ctx, graphCfg, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open store: %w", err), c.Close())
	}
	d, err := NewDispatcher(cfg.Dispatch, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build dispatcher: %w", err), store.Close(), c.Close())
	}

	opts := []resolver.Option{
		resolver.WithName(cfg.Name),
		resolver.WithStore(store),
		resolver.WithDispatcher(d),
		resolver.WithOwnedCache(c),
		resolver.WithIngestConfig(cfg.IngestConfig()),
		resolver.WithTimeouts(cfg.Cache.Timeout, cfg.Cache.ReffsTimeout),
		resolver.WithLogger(logger),
	}
	if cfg.TextCache {
		opts = append(opts, resolver.WithTextCache(cfg.TextCacheSize))
	}
	return resolver.New(cfg.Sources, opts...), nil
}
