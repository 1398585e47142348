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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// TEINamespace is the TEI P5 namespace URI.
const TEINamespace = "http://www.tei-c.org/ns/1.0"

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// element is a node of the parsed document. kids holds *element and
// string (character data) values in document order.
type element struct {
	name  xml.Name
	attrs []xml.Attr
	kids  []any
}

func (e *element) attr(local string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) eachChild(fn func(*element)) {
	for _, k := range e.kids {
		if c, ok := k.(*element); ok {
			fn(c)
		}
	}
}

func (e *element) eachDescendant(fn func(*element)) {
	e.eachChild(func(c *element) {
		fn(c)
		c.eachDescendant(fn)
	})
}

func (e *element) find(local string) *element {
	var found *element
	e.eachDescendant(func(c *element) {
		if found == nil && c.name.Local == local {
			found = c
		}
	})
	return found
}

func (e *element) text(b *strings.Builder) {
	for _, k := range e.kids {
		switch v := k.(type) {
		case string:
			b.WriteString(v)
		case *element:
			v.text(b)
		}
	}
}

func (e *element) writeXML(b *strings.Builder, top bool) {
	b.WriteByte('<')
	b.WriteString(e.name.Local)
	if top && e.name.Space != "" {
		fmt.Fprintf(b, ` xmlns="%s"`, e.name.Space)
	}
	for _, a := range e.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		b.WriteByte(' ')
		if a.Name.Space == xmlNamespace {
			b.WriteString("xml:")
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		_ = xml.EscapeText(stringWriter{b}, []byte(a.Value))
		b.WriteByte('"')
	}
	if len(e.kids) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, k := range e.kids {
		switch v := k.(type) {
		case string:
			_ = xml.EscapeText(stringWriter{b}, []byte(v))
		case *element:
			v.writeXML(b, false)
		}
	}
	b.WriteString("</")
	b.WriteString(e.name.Local)
	b.WriteByte('>')
}

type stringWriter struct{ b *strings.Builder }

func (w stringWriter) Write(p []byte) (int, error) { return w.b.Write(p) }

// Document is a parsed TEI text with its citation scheme.
//
// Thread Safety: A Document is immutable after Parse and safe for
// concurrent use.
type Document struct {
	root     *element
	citation *Citation
	levels   []*selector
}

// Open parses the TEI file at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a TEI document and extracts its citation scheme.
//
// Description:
//
//	Builds an in-memory element tree, then reads the refsDecl with
//	n="CTS" (or the first refsDecl holding cRefPatterns) and compiles each
//	level's selector.
//
// Outputs:
//
//	*Document - The parsed document.
//	error - ErrMalformed for XML errors, ErrNoCitation when the scheme is
//	        missing or empty, ErrSelector when a selector cannot be compiled.
func Parse(r io.Reader) (*Document, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, err
	}

	cit := Build(readPatterns(root))
	if cit.IsEmpty() {
		return nil, ErrNoCitation
	}

	doc := &Document{root: root, citation: cit}
	for _, l := range cit.Levels() {
		sel, err := compileSelector(l.Selector)
		if err != nil {
			return nil, err
		}
		doc.levels = append(doc.levels, sel)
	}
	return doc, nil
}

func parseTree(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	doc := &element{}
	stack := []*element{doc}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			top.kids = append(top.kids, e)
			stack = append(stack, e)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 1 {
				top.kids = append(top.kids, string(t))
			}
		}
	}
	if len(stack) != 1 || len(doc.kids) == 0 {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return doc, nil
}

func readPatterns(doc *element) []Pattern {
	var decls []*element
	doc.eachDescendant(func(e *element) {
		if e.name.Local == "refsDecl" {
			decls = append(decls, e)
		}
	})

	var chosen *element
	for _, d := range decls {
		if n, _ := d.attr("n"); n == "CTS" {
			chosen = d
			break
		}
	}
	if chosen == nil {
		for _, d := range decls {
			if d.find("cRefPattern") != nil {
				chosen = d
				break
			}
		}
	}
	if chosen == nil {
		return nil
	}

	var out []Pattern
	chosen.eachChild(func(e *element) {
		if e.name.Local != "cRefPattern" {
			return
		}
		p := Pattern{}
		p.Name, _ = e.attr("n")
		p.Match, _ = e.attr("matchPattern")
		p.Replacement, _ = e.attr("replacementPattern")
		out = append(out, p)
	})
	return out
}

// Citation returns the document's citation scheme.
func (d *Document) Citation() *Citation {
	return d.citation
}

// ResolveLevel normalises a requested reference level.
//
// Description:
//
//	Levels are absolute and 1-based. A negative level selects the deepest
//	level. A level at or above the depth of ref is lifted to the level
//	just below ref.
//
// Outputs:
//
//	int - The effective level.
//	error - ErrInvalidLevel when the level exceeds the citation depth.
func (d *Document) ResolveLevel(level int, ref urn.Reference) (int, error) {
	depth := ref.Depth()
	if level < 0 {
		level = d.citation.Depth()
	}
	if level <= depth {
		level = depth + 1
	}
	if level > d.citation.Depth() {
		return 0, fmt.Errorf("%w: level %d exceeds citation depth %d", ErrInvalidLevel, level, d.citation.Depth())
	}
	return level, nil
}

// Reffs lists the references at level under ref, in document order.
//
// Description:
//
//	A zero ref lists the whole text. A range ref lists the references
//	whose ancestors at the range's depth fall between start and end.
//
// Inputs:
//
//	level - Requested level, normalised by ResolveLevel.
//	ref - Optional parent reference.
//
// Outputs:
//
//	[]string - References formatted as "a.b.c".
//	error - ErrInvalidLevel or ErrUnknownReference.
func (d *Document) Reffs(level int, ref urn.Reference) ([]string, error) {
	level, err := d.ResolveLevel(level, ref)
	if err != nil {
		return nil, err
	}

	if !ref.IsRange() {
		if !ref.IsZero() {
			if _, err := d.element(ref.Start); err != nil {
				return nil, err
			}
		}
		return d.list(level, ref.Start), nil
	}

	parents := d.list(ref.Depth(), nil)
	first, last, err := span(parents, ref)
	if err != nil {
		return nil, err
	}
	inRange := make(map[string]bool, last-first+1)
	for _, p := range parents[first : last+1] {
		inRange[p] = true
	}
	var out []string
	for _, r := range d.list(level, nil) {
		parts := strings.Split(r, ".")
		if inRange[strings.Join(parts[:ref.Depth()], ".")] {
			out = append(out, r)
		}
	}
	return out, nil
}

// list evaluates the level selector with the given leading values bound.
func (d *Document) list(level int, bound []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range d.levels[level-1].eval(d.root, bound) {
		r := strings.Join(m.values[:min(level, len(m.values))], ".")
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// element locates the passage element of a point reference.
func (d *Document) element(parts []string) (*element, error) {
	if len(parts) > len(d.levels) {
		return nil, fmt.Errorf("%w: %s is deeper than the citation scheme", ErrUnknownReference, strings.Join(parts, "."))
	}
	matches := d.levels[len(parts)-1].eval(d.root, parts)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, strings.Join(parts, "."))
	}
	return matches[0].el, nil
}

func span(list []string, ref urn.Reference) (int, int, error) {
	first, last := -1, -1
	start, end := ref.StartString(), ref.EndString()
	for i, r := range list {
		if r == start {
			first = i
		}
		if r == end {
			last = i
		}
	}
	if first < 0 || last < 0 || last < first {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownReference, ref.String())
	}
	return first, last, nil
}

// Passage is an extracted part of a text.
type Passage struct {
	Reference string `cbor:"1,keyasint,omitempty"`
	Level     string `cbor:"2,keyasint,omitempty"`
	Text      string `cbor:"3,keyasint"`
	XML       string `cbor:"4,keyasint"`
	Prev      string `cbor:"5,keyasint,omitempty"`
	Next      string `cbor:"6,keyasint,omitempty"`
}

// Passage extracts the passage addressed by ref.
//
// Description:
//
//	A zero ref returns the whole text body. Points and ranges carry the
//	neighbouring references at the same depth; a range's neighbours span
//	the same number of passages as the range itself.
//
// Outputs:
//
//	*Passage - The passage with Prev/Next set where they exist.
//	error - ErrUnknownReference when ref addresses nothing.
func (d *Document) Passage(ref urn.Reference) (*Passage, error) {
	if ref.IsZero() {
		body := d.root.find("text")
		if body == nil {
			body = d.root
		}
		return d.render(ref, "", []*element{body}), nil
	}

	if ref.Depth() > len(d.levels) {
		return nil, fmt.Errorf("%w: %s is deeper than the citation scheme", ErrUnknownReference, ref.String())
	}

	siblings := d.list(ref.Depth(), nil)
	first, last, err := span(siblings, ref)
	if err != nil {
		return nil, err
	}

	var els []*element
	for _, r := range siblings[first : last+1] {
		el, err := d.element(strings.Split(r, "."))
		if err != nil {
			return nil, err
		}
		els = append(els, el)
	}

	p := d.render(ref, d.citation.Level(ref.Depth()).Name, els)
	width := last - first + 1
	if first > 0 {
		p.Prev = joinSpan(siblings[max(0, first-width)], siblings[first-1])
	}
	if last < len(siblings)-1 {
		p.Next = joinSpan(siblings[last+1], siblings[min(len(siblings)-1, last+width)])
	}
	return p, nil
}

func (d *Document) render(ref urn.Reference, level string, els []*element) *Passage {
	var text, raw strings.Builder
	for _, e := range els {
		e.text(&text)
		text.WriteByte(' ')
		e.writeXML(&raw, true)
	}
	p := &Passage{
		Level: level,
		Text:  strings.Join(strings.Fields(text.String()), " "),
		XML:   raw.String(),
	}
	if !ref.IsZero() {
		p.Reference = ref.String()
	}
	return p
}

func joinSpan(start, end string) string {
	if start == end {
		return start
	}
	return start + "-" + end
}
