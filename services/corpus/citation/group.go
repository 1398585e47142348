// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citation

import (
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// GroupReferences chunks a reference list into ranges of groupBy items.
//
// Description:
//
//	References are first bucketed by their first level-1 values, so a
//	range never crosses a parent boundary. Each bucket is then cut into
//	consecutive chunks of groupBy references and every chunk becomes a
//	range from its first to its last member. A chunk of one collapses to a
//	point. Bucket order follows first appearance.
//
// Inputs:
//
//	refs - References in document order, formatted as "a.b.c".
//	groupBy - Chunk size. Values below 1 are treated as 1.
//	level - Level of refs, 1-based. Values below 1 are treated as 1.
//
// Outputs:
//
//	[]string - Grouped references.
//
// Example:
//
//	GroupReferences([]string{"1", "2", "3"}, 2, 1) // ["1-2", "3"]
func GroupReferences(refs []string, groupBy, level int) []string {
	if groupBy < 1 {
		groupBy = 1
	}
	if level < 1 {
		level = 1
	}

	var order []string
	buckets := make(map[string][]string)
	for _, r := range refs {
		if r == "" {
			continue
		}
		parts := strings.Split(r, ".")
		key := strings.Join(parts[:min(level-1, len(parts))], ".")
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], r)
	}

	var out []string
	for _, key := range order {
		members := buckets[key]
		for i := 0; i < len(members); i += groupBy {
			chunk := members[i:min(i+groupBy, len(members))]
			first := strings.Split(chunk[0], ".")
			last := strings.Split(chunk[len(chunk)-1], ".")
			out = append(out, urn.Span(first, last).String())
		}
	}
	return out
}
