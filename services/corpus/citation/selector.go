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
	"fmt"
	"strconv"
	"strings"
)

// step is one location step of a selector.
type step struct {
	descendant bool
	local      string
	preds      []pred
}

// pred is an attribute test. variable > 0 binds the attribute to the
// level value "$variable"; otherwise value is compared literally, or only
// existence is tested when exists is set.
type pred struct {
	attr     string
	value    string
	variable int
	exists   bool
}

// selector is a compiled subset of XPath:
//
//	/prefix:name          child step
//	//prefix:name         descendant step
//	[@a="v" and @b="$1"]  attribute predicates
type selector struct {
	steps []step
	vars  int
}

func compileSelector(s string) (*selector, error) {
	sel := &selector{}
	i := 0
	for i < len(s) {
		if s[i] != '/' {
			return nil, fmt.Errorf("%w: %q: expected '/' at %d", ErrSelector, s, i)
		}
		st := step{}
		i++
		if i < len(s) && s[i] == '/' {
			st.descendant = true
			i++
		}

		start := i
		for i < len(s) && s[i] != '/' && s[i] != '[' {
			i++
		}
		name := s[start:i]
		if name == "" {
			return nil, fmt.Errorf("%w: %q: empty step at %d", ErrSelector, s, start)
		}
		if idx := strings.IndexByte(name, ':'); idx >= 0 {
			name = name[idx+1:]
		}
		st.local = name

		for i < len(s) && s[i] == '[' {
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated predicate", ErrSelector, s)
			}
			preds, err := compilePredicates(s[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrSelector, s, err)
			}
			for _, p := range preds {
				if p.variable > sel.vars {
					sel.vars = p.variable
				}
			}
			st.preds = append(st.preds, preds...)
			i += end + 1
		}
		sel.steps = append(sel.steps, st)
	}
	if len(sel.steps) == 0 {
		return nil, fmt.Errorf("%w: empty selector", ErrSelector)
	}
	return sel, nil
}

func compilePredicates(body string) ([]pred, error) {
	var out []pred
	for _, clause := range strings.Split(body, " and ") {
		clause = strings.TrimSpace(clause)
		if !strings.HasPrefix(clause, "@") {
			return nil, fmt.Errorf("predicate %q is not an attribute test", clause)
		}
		eq := strings.IndexByte(clause, '=')
		if eq < 0 {
			out = append(out, pred{attr: localName(clause[1:]), exists: true})
			continue
		}
		attr := localName(strings.TrimSpace(clause[1:eq]))
		value := strings.Trim(strings.TrimSpace(clause[eq+1:]), `"`)
		p := pred{attr: attr, value: value}
		if strings.HasPrefix(value, "$") {
			n, err := strconv.Atoi(value[1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad variable %q", value)
			}
			p.variable = n
		}
		out = append(out, p)
	}
	return out, nil
}

func localName(s string) string {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// match is one selected element with the level values it bound.
type match struct {
	el     *element
	values []string
}

// eval selects elements under doc. Level values already known are given in
// bound (index 0 is "$1"); empty entries are captured from the document.
func (sel *selector) eval(doc *element, bound []string) []match {
	values := make([]string, sel.vars)
	copy(values, bound)
	var out []match
	sel.walk(doc, 0, values, &out)
	return out
}

func (sel *selector) walk(ctx *element, i int, values []string, out *[]match) {
	if i == len(sel.steps) {
		*out = append(*out, match{el: ctx, values: append([]string(nil), values...)})
		return
	}
	st := sel.steps[i]
	visit := func(e *element) {
		next, ok := st.test(e, values)
		if ok {
			sel.walk(e, i+1, next, out)
		}
	}
	if st.descendant {
		ctx.eachDescendant(visit)
	} else {
		ctx.eachChild(visit)
	}
}

// test checks e against the step and returns the values extended with any
// newly captured variables.
func (st step) test(e *element, values []string) ([]string, bool) {
	if st.local != "*" && e.name.Local != st.local {
		return nil, false
	}
	next := values
	copied := false
	for _, p := range st.preds {
		v, ok := e.attr(p.attr)
		if !ok {
			return nil, false
		}
		switch {
		case p.exists:
		case p.variable > 0:
			want := next[p.variable-1]
			if want != "" {
				if v != want {
					return nil, false
				}
				continue
			}
			if !copied {
				next = append([]string(nil), values...)
				copied = true
			}
			next[p.variable-1] = v
		default:
			if v != p.value {
				return nil, false
			}
		}
	}
	return next, true
}
