// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"path/filepath"
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// IDPrefix accepts nodes whose identity starts with one of prefixes at a
// component boundary, so "urn:cts:latinLit:phi1294" accepts
// "urn:cts:latinLit:phi1294" and "urn:cts:latinLit:phi1294.phi002" but
// not "urn:cts:latinLit:phi12945". A prefix ending in ':' matches any
// identity in that namespace.
func IDPrefix(prefixes ...string) Predicate {
	return func(node *collection.Node, _ string) bool {
		for _, p := range prefixes {
			if p == "" {
				continue
			}
			if node.ID == p || urn.IsExtension(p, node.ID) {
				return true
			}
			if strings.HasSuffix(p, ":") && strings.HasPrefix(node.ID, p) {
				return true
			}
		}
		return false
	}
}

// PathGlob accepts nodes whose descriptor path matches one of globs.
//
// A glob containing a separator is matched against the whole path.
// Otherwise it is matched against each directory element of the path,
// so "canonical-*" accepts "/corpora/canonical-latinLit/data/x/__cts__.xml".
func PathGlob(globs ...string) Predicate {
	return func(_ *collection.Node, path string) bool {
		if path == "" {
			return false
		}
		clean := filepath.Clean(path)
		for _, g := range globs {
			if strings.ContainsRune(g, filepath.Separator) {
				if ok, _ := filepath.Match(g, clean); ok {
					return true
				}
				continue
			}
			for _, elem := range strings.Split(clean, string(filepath.Separator)) {
				if ok, _ := filepath.Match(g, elem); ok && elem != "" {
					return true
				}
			}
		}
		return false
	}
}

// Any accepts a node if any predicate does.
func Any(preds ...Predicate) Predicate {
	return func(node *collection.Node, path string) bool {
		for _, p := range preds {
			if p != nil && p(node, path) {
				return true
			}
		}
		return false
	}
}
