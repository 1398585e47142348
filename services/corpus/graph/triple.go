// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph stores the collection hierarchy as triples.
//
// # Description
//
// Every collection node becomes a subject with a "type" triple naming
// its kind and a "parent" triple pointing at its container. Labels,
// descriptions, language, file path and citation levels are further
// triples on the same subject. Reading a node back inspects the stored
// type tag and rebuilds the node for that kind.
//
// Three engines implement TripleStore with the same contract:
//
//   - Memory: in-process subject and predicate indexes
//   - SQLite: one table per database, recursive CTEs for closures
//   - Badger: embedded KV with SPO and POS key layouts
//
// Backend adapts any TripleStore to collection.Store.
//
// # Thread Safety
//
// Engines are safe for concurrent use. Backend serialises its writers.
package graph

import (
	"context"
	"errors"
	"sort"
)

// Predicates used by Backend.
const (
	PredType        = "type"
	PredParent      = "parent"
	PredLabel       = "label"
	PredDescription = "description"
	PredLang        = "lang"
	PredPath        = "path"
	PredCitation    = "citation"
)

// ErrClosed indicates use of a store after Close or Destroy.
var ErrClosed = errors.New("triple store is closed")

// Triple is one (subject, predicate, object) statement.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// TripleStore holds the triples of one named graph.
//
// Thread Safety: Implementations must be safe for concurrent use.
type TripleStore interface {
	// Add inserts triples. Duplicates are ignored.
	Add(ctx context.Context, triples ...Triple) error

	// Objects returns the sorted objects of (subject, predicate, *).
	Objects(ctx context.Context, subject, predicate string) ([]string, error)

	// Subjects returns the sorted subjects of (*, predicate, object).
	Subjects(ctx context.Context, predicate, object string) ([]string, error)

	// Describe returns every triple with the given subject.
	Describe(ctx context.Context, subject string) ([]Triple, error)

	// RemoveSubject deletes every triple with the given subject.
	RemoveSubject(ctx context.Context, subject string) error

	// Closure returns the sorted subjects connected to object by a path
	// of one or more predicate edges (s -p-> ... -p-> object).
	Closure(ctx context.Context, predicate, object string) ([]string, error)

	// Reaches reports whether a path of one or more predicate edges
	// leads from subject to object.
	Reaches(ctx context.Context, subject, predicate, object string) (bool, error)

	// Clear deletes every triple of the graph. Safe on an empty graph.
	Clear(ctx context.Context) error

	// Destroy drops the graph and releases the store. The release
	// happens even if dropping fails. Safe to call more than once.
	Destroy() error

	// Close releases the store without dropping the graph. Safe to call
	// more than once.
	Close() error
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
