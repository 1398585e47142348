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
	"sync"
)

// index maps a → b → set of c.
type index map[string]map[string]map[string]struct{}

func (ix index) add(a, b, c string) {
	if ix[a] == nil {
		ix[a] = make(map[string]map[string]struct{})
	}
	if ix[a][b] == nil {
		ix[a][b] = make(map[string]struct{})
	}
	ix[a][b][c] = struct{}{}
}

func (ix index) remove(a, b, c string) {
	set := ix[a][b]
	delete(set, c)
	if len(set) == 0 {
		delete(ix[a], b)
	}
	if len(ix[a]) == 0 {
		delete(ix, a)
	}
}

// Memory is an in-process TripleStore.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	spo    index
	pos    index
	closed bool
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{spo: make(index), pos: make(index)}
}

// Add implements TripleStore.
func (m *Memory) Add(ctx context.Context, triples ...Triple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, t := range triples {
		m.spo.add(t.Subject, t.Predicate, t.Object)
		m.pos.add(t.Predicate, t.Object, t.Subject)
	}
	return nil
}

// Objects implements TripleStore.
func (m *Memory) Objects(_ context.Context, subject, predicate string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return sortedKeys(m.spo[subject][predicate]), nil
}

// Subjects implements TripleStore.
func (m *Memory) Subjects(_ context.Context, predicate, object string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return sortedKeys(m.pos[predicate][object]), nil
}

// Describe implements TripleStore.
func (m *Memory) Describe(_ context.Context, subject string) ([]Triple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Triple
	for p, objects := range m.spo[subject] {
		for o := range objects {
			out = append(out, Triple{Subject: subject, Predicate: p, Object: o})
		}
	}
	return out, nil
}

// RemoveSubject implements TripleStore.
func (m *Memory) RemoveSubject(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for p, objects := range m.spo[subject] {
		for o := range objects {
			m.pos.remove(p, o, subject)
		}
	}
	delete(m.spo, subject)
	return nil
}

// Closure implements TripleStore.
func (m *Memory) Closure(_ context.Context, predicate, object string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	queue := []string{object}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for s := range m.pos[predicate][cur] {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			queue = append(queue, s)
		}
	}
	return sortedKeys(seen), nil
}

// Reaches implements TripleStore.
func (m *Memory) Reaches(_ context.Context, subject, predicate, object string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	seen := map[string]struct{}{subject: {}}
	queue := []string{subject}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for o := range m.spo[cur][predicate] {
			if o == object {
				return true, nil
			}
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			queue = append(queue, o)
		}
	}
	return false, nil
}

// Clear implements TripleStore.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.spo = make(index)
	m.pos = make(index)
	return nil
}

// Destroy implements TripleStore.
func (m *Memory) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spo = make(index)
	m.pos = make(index)
	m.closed = true
	return nil
}

// Close implements TripleStore.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored triples.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, preds := range m.spo {
		for _, objects := range preds {
			n += len(objects)
		}
	}
	return n
}
