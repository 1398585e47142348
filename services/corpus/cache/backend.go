// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"strings"
	"time"
)

// Backend is a key/value store with optional per-key expiry.
//
// Backends store opaque bytes; encoding is the Cache's concern.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value for key, or ok=false on a miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value. A ttl of 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every key starting with prefix and returns
	// how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes every key.
	Clear(ctx context.Context) error

	// Close releases the backend. Safe to call more than once.
	Close() error
}

// Memory is a process-local Backend on top of LRU.
type Memory struct {
	lru *LRU[string, []byte]
}

// NewMemory creates a process-local backend holding at most capacity
// entries.
func NewMemory(capacity int) *Memory {
	return &Memory{lru: NewLRU[string, []byte](capacity)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.lru.Set(key, value, ttl)
	return nil
}

// DeletePrefix implements Backend.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) (int, error) {
	return m.lru.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) }), nil
}

// Clear implements Backend.
func (m *Memory) Clear(context.Context) error {
	m.lru.Purge()
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Null stores nothing: every Get misses, so every GetOr computes.
type Null struct{}

// Get implements Backend.
func (Null) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set implements Backend.
func (Null) Set(context.Context, string, []byte, time.Duration) error { return nil }

// DeletePrefix implements Backend.
func (Null) DeletePrefix(context.Context, string) (int, error) { return 0, nil }

// Clear implements Backend.
func (Null) Clear(context.Context) error { return nil }

// Close implements Backend.
func (Null) Close() error { return nil }
