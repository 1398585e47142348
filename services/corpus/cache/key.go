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
	"fmt"
	"strings"
)

// DefaultNamespace prefixes every key written by the resolver.
const DefaultNamespace = "Nautilus"

// Key identifies a cached result.
//
// The namespace and resolver name are part of every key, so one backend
// may be shared by several resolvers. The operation tag keeps keys of
// different operations apart even when their arguments coincide.
type Key struct {
	Namespace string
	Resolver  string
	Operation string
	Args      []string
}

// NewKey builds a key in the default namespace.
//
// Arguments are formatted with fmt.Sprint. A nil argument and an empty
// string both encode as the empty component, so callers should normalise
// absent optional arguments to one of them.
func NewKey(resolver, operation string, args ...any) Key {
	k := Key{Namespace: DefaultNamespace, Resolver: resolver, Operation: operation}
	for _, a := range args {
		if a == nil {
			k.Args = append(k.Args, "")
			continue
		}
		k.Args = append(k.Args, fmt.Sprint(a))
	}
	return k
}

// String encodes the key.
//
// Description:
//
//	Components are escaped ('%' → "%25", ':' → "%3A") and joined with
//	':'. Escaping makes the encoding injective: two keys encode to the
//	same string only if all components are equal.
func (k Key) String() string {
	parts := make([]string, 0, 3+len(k.Args))
	parts = append(parts, escape(k.Namespace), escape(k.Resolver), escape(k.Operation))
	for _, a := range k.Args {
		parts = append(parts, escape(a))
	}
	return strings.Join(parts, ":")
}

// ResolverPrefix is the common prefix of every key of one resolver.
func ResolverPrefix(namespace, resolver string) string {
	return escape(namespace) + ":" + escape(resolver) + ":"
}

var escaper = strings.NewReplacer("%", "%25", ":", "%3A")

func escape(s string) string {
	return escaper.Replace(s)
}
