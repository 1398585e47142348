// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the resolver configuration and builds the runtime
// objects it describes.
//
// # Description
//
// Configuration comes from a YAML file, then NAUTILUS_* environment
// variables override individual fields, then the result is validated.
// The factories in factory.go turn a validated Config into a cache, a
// collection store, a dispatcher and a resolver.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nautilus/pkg/telemetry"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
	"github.com/AleutianAI/nautilus/services/corpus/resolver"
)

// ErrInvalid wraps validation and environment parsing failures.
var ErrInvalid = errors.New("invalid configuration")

// Cache backends.
const (
	CacheMemory  = "memory"
	CacheBadger  = "badger"
	CacheLevelDB = "leveldb"
	CacheNone    = "none"
)

// Graph engines.
const (
	EngineTree   = "tree"
	EngineMemory = "memory"
	EngineSQLite = "sqlite"
	EngineBadger = "badger"
)

// Config is the complete resolver configuration.
type Config struct {
	// Name scopes the resolver's cache keys.
	Name string `yaml:"name" validate:"required"`

	// Sources are the corpus roots, in priority order.
	Sources []string `yaml:"sources,omitempty" validate:"dive,required"`

	// Workers bounds ingestion parallelism. 0 picks one less than the
	// number of CPUs.
	Workers int `yaml:"workers" validate:"gte=0"`

	RemoveEmpty         bool `yaml:"remove_empty"`
	RaiseOnUndispatched bool `yaml:"raise_on_undispatched"`

	// Strict fails parsing on unexpected text errors.
	Strict bool `yaml:"strict"`

	// TextCache keeps parsed documents in memory.
	TextCache     bool `yaml:"text_cache"`
	TextCacheSize int  `yaml:"text_cache_size" validate:"gte=0"`

	Cache    CacheConfig    `yaml:"cache"`
	Graph    GraphConfig    `yaml:"graph"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory badger leveldb none"`

	// Path is the directory of a badger or leveldb cache.
	Path string `yaml:"path" validate:"required_if=Backend badger,required_if=Backend leveldb"`

	// Capacity bounds the memory backend. 0 uses the LRU default.
	Capacity int `yaml:"capacity" validate:"gte=0"`

	// Timeout is the lifetime of query results. 0 never expires.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// ReffsTimeout is the lifetime of reference lists.
	ReffsTimeout time.Duration `yaml:"reffs_timeout" validate:"gte=0"`
}

// GraphConfig selects the collection store.
type GraphConfig struct {
	Engine string `yaml:"engine" validate:"oneof=tree memory sqlite badger"`

	// DSN is the sqlite database or the badger directory. An empty
	// sqlite DSN is an in-memory database.
	DSN string `yaml:"dsn" validate:"required_if=Engine badger"`

	// Name is the graph name. Empty picks a random one.
	Name string `yaml:"name"`
}

// DispatchConfig describes the inventory hierarchy.
type DispatchConfig struct {
	Root string `yaml:"root" validate:"required"`

	// DefaultInventory receives textgroups no rule claims. Empty means
	// unclaimed textgroups are undispatched.
	DefaultInventory string `yaml:"default_inventory"`
	DefaultLabel     string `yaml:"default_label"`

	Inventories []InventoryConfig `yaml:"inventories,omitempty" validate:"dive"`
}

// InventoryConfig is a named inventory and the rule that fills it. A
// textgroup matching any prefix or glob belongs to it.
type InventoryConfig struct {
	Name       string   `yaml:"name" validate:"required"`
	Label      string   `yaml:"label"`
	IDPrefixes []string `yaml:"id_prefixes,omitempty"`
	PathGlobs  []string `yaml:"path_globs,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// DefaultConfig returns the configuration used when nothing is set: an
// in-memory tree, an in-memory cache and the default inventory.
func DefaultConfig() Config {
	return Config{
		Name:        resolver.DefaultName,
		RemoveEmpty: true,
		Cache: CacheConfig{
			Backend:      CacheMemory,
			ReffsTimeout: resolver.DefaultReffsTimeout,
		},
		Graph: GraphConfig{Engine: EngineTree},
		Dispatch: DispatchConfig{
			Root:             dispatch.RootID,
			DefaultInventory: dispatch.DefaultInventory,
			DefaultLabel:     dispatch.DefaultLabel,
		},
		TextCacheSize: resolver.DefaultTextCacheSize,
		Log:           LogConfig{Level: "info"},
		Telemetry:     telemetry.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
//
// Inputs:
//
//	path - YAML file. Empty skips the file.
//
// Outputs:
//
//	Config - The configuration.
//	error - File or YAML errors, or ErrInvalid (wrapped).
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from NAUTILUS_* variables read with getenv.
// Unset or empty variables leave fields unchanged.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v := getenv(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, name, v)
		}
		*dst = b
		return nil
	}

	if v := getenv("NAUTILUS_SOURCES"); v != "" {
		cfg.Sources = nil
		for _, s := range strings.Split(v, string(os.PathListSeparator)) {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Sources = append(cfg.Sources, s)
			}
		}
	}
	str("NAUTILUS_NAME", &cfg.Name)
	str("NAUTILUS_CACHE_BACKEND", &cfg.Cache.Backend)
	str("NAUTILUS_CACHE_PATH", &cfg.Cache.Path)
	str("NAUTILUS_GRAPH_ENGINE", &cfg.Graph.Engine)
	str("NAUTILUS_GRAPH_DSN", &cfg.Graph.DSN)
	str("NAUTILUS_GRAPH_NAME", &cfg.Graph.Name)
	str("NAUTILUS_LOG_LEVEL", &cfg.Log.Level)
	str("NAUTILUS_METRICS_ADDR", &cfg.Telemetry.MetricsAddr)

	if v := getenv("NAUTILUS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: NAUTILUS_WORKERS=%q is not an integer", ErrInvalid, v)
		}
		cfg.Workers = n
	}

	for name, dst := range map[string]*bool{
		"NAUTILUS_REMOVE_EMPTY":          &cfg.RemoveEmpty,
		"NAUTILUS_RAISE_ON_UNDISPATCHED": &cfg.RaiseOnUndispatched,
		"NAUTILUS_STRICT":                &cfg.Strict,
		"NAUTILUS_TEXT_CACHE":            &cfg.TextCache,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	return nil
}
