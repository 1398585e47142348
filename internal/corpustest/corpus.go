// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpustest writes small CapiTainS corpora to disk for tests.
package corpustest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Namespace is the CTS namespace used by the fixtures.
const Namespace = "latinLit"

// Identifiers of the reference scenario: one group with one work that has
// an edition and a translation.
const (
	GroupID       = "urn:cts:latinLit:phi1294"
	WorkID        = "urn:cts:latinLit:phi1294.phi002"
	EditionID     = "urn:cts:latinLit:phi1294.phi002.perseus-lat2"
	TranslationID = "urn:cts:latinLit:phi1294.phi002.perseus-eng2"
)

// Version describes one text of a work.
type Version struct {
	Kind  string // edition, translation or commentary
	ID    string // version segment, e.g. "perseus-lat2"
	Lang  string
	Label string

	// Shape is the number of children per citation level, outermost
	// first. {2, 2, 3} is 2 books of 2 poems of 3 lines.
	Shape []int

	// NoFile skips writing the text file.
	NoFile bool
	// NoCitation writes a text without a refsDecl.
	NoCitation bool
	// Broken writes a text that is not well-formed XML.
	Broken bool
}

// Work describes a work descriptor.
type Work struct {
	ID       string // work segment, e.g. "phi002"
	Title    string
	Versions []Version
}

// Group describes a textgroup descriptor and its works.
type Group struct {
	ID    string // group segment, e.g. "phi1294"
	Name  string
	Works []Work
}

// URN returns the group URN.
func (g Group) URN() string {
	return fmt.Sprintf("urn:cts:%s:%s", Namespace, g.ID)
}

// Scenario returns the reference corpus: group phi1294, work phi002 with a
// 3-level edition and a 3-level translation, each with 2 top-level books.
func Scenario() Group {
	return Group{
		ID:   "phi1294",
		Name: "Martial",
		Works: []Work{{
			ID:    "phi002",
			Title: "Epigrammata",
			Versions: []Version{
				{Kind: "edition", ID: "perseus-lat2", Lang: "lat", Label: "Epigrammata", Shape: []int{2, 2, 3}},
				{Kind: "translation", ID: "perseus-eng2", Lang: "eng", Label: "Epigrams", Shape: []int{2, 2, 3}},
			},
		}},
	}
}

// Write lays out groups under root/data following the CapiTainS guidelines.
func Write(tb testing.TB, root string, groups ...Group) {
	tb.Helper()
	for _, g := range groups {
		gdir := filepath.Join(root, "data", g.ID)
		mustWrite(tb, filepath.Join(gdir, "__cts__.xml"), GroupDescriptor(g))
		for _, w := range g.Works {
			wdir := filepath.Join(gdir, w.ID)
			mustWrite(tb, filepath.Join(wdir, "__cts__.xml"), WorkDescriptor(g, w))
			for _, v := range w.Versions {
				if v.NoFile {
					continue
				}
				path := TextPath(root, g, w, v)
				switch {
				case v.Broken:
					mustWrite(tb, path, "<TEI><text>")
				case v.NoCitation:
					mustWrite(tb, path, TEI(nil))
				default:
					mustWrite(tb, path, TEI(v.Shape))
				}
			}
		}
	}
}

// TextPath is the on-disk location of a version.
func TextPath(root string, g Group, w Work, v Version) string {
	return filepath.Join(root, "data", g.ID, w.ID, fmt.Sprintf("%s.%s.%s.xml", g.ID, w.ID, v.ID))
}

// GroupDescriptor renders a textgroup __cts__.xml.
func GroupDescriptor(g Group) string {
	return fmt.Sprintf(`<ti:textgroup xmlns:ti="http://chs.harvard.edu/xmlns/cts" urn="%s">
  <ti:groupname xml:lang="eng">%s</ti:groupname>
</ti:textgroup>
`, g.URN(), g.Name)
}

// WorkDescriptor renders a work __cts__.xml.
func WorkDescriptor(g Group, w Work) string {
	workURN := g.URN() + "." + w.ID
	var b strings.Builder
	fmt.Fprintf(&b, `<ti:work xmlns:ti="http://chs.harvard.edu/xmlns/cts" groupUrn="%s" urn="%s" xml:lang="lat">
  <ti:title xml:lang="lat">%s</ti:title>
`, g.URN(), workURN, w.Title)
	for _, v := range w.Versions {
		lang := ""
		if v.Kind == "translation" {
			lang = fmt.Sprintf(` xml:lang="%s"`, v.Lang)
		}
		fmt.Fprintf(&b, `  <ti:%s workUrn="%s" urn="%s.%s"%s>
    <ti:label xml:lang="eng">%s</ti:label>
    <ti:description xml:lang="eng">%s of %s</ti:description>
  </ti:%s>
`, v.Kind, workURN, workURN, v.ID, lang, v.Label, v.Label, w.Title, v.Kind)
	}
	b.WriteString("</ti:work>\n")
	return b.String()
}

// TEI renders a TEI text whose citation scheme has len(shape) levels.
// Inner levels are tei:div, the deepest level is tei:l. A nil shape
// renders a text without refsDecl.
func TEI(shape []int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <encodingDesc>
`)
	if len(shape) > 0 {
		b.WriteString(`      <refsDecl n="CTS">
`)
		for level := len(shape); level >= 1; level-- {
			fmt.Fprintf(&b, `        <cRefPattern n="%s" matchPattern="%s" replacementPattern="#xpath(%s)"/>
`, levelName(level, len(shape)), matchPattern(level), Selector(level, len(shape)))
		}
		b.WriteString(`      </refsDecl>
`)
	}
	b.WriteString(`    </encodingDesc>
  </teiHeader>
  <text>
    <body>
      <div type="edition">
`)
	writeLevel(&b, shape, nil, 8)
	b.WriteString(`      </div>
    </body>
  </text>
</TEI>
`)
	return b.String()
}

// Selector is the replacement pattern of level (1-based) in a scheme of
// the given depth.
func Selector(level, depth int) string {
	var b strings.Builder
	b.WriteString("/tei:TEI/tei:text/tei:body/tei:div[@type='edition']")
	for i := 1; i <= level; i++ {
		tag := "tei:div"
		if i == depth {
			tag = "tei:l"
		}
		fmt.Fprintf(&b, "/%s[@n='$%d']", tag, i)
	}
	return b.String()
}

func levelName(level, depth int) string {
	names := []string{"book", "poem", "line"}
	if depth <= len(names) {
		return names[len(names)-depth+level-1]
	}
	return fmt.Sprintf("level%d", level)
}

func matchPattern(level int) string {
	return strings.TrimSuffix(strings.Repeat(`(\w+).`, level), ".")
}

func writeLevel(b *strings.Builder, shape []int, prefix []string, indent int) {
	if len(shape) == 0 {
		return
	}
	pad := strings.Repeat(" ", indent)
	for i := 1; i <= shape[0]; i++ {
		n := fmt.Sprint(i)
		ref := append(append([]string(nil), prefix...), n)
		if len(shape) == 1 {
			fmt.Fprintf(b, "%s<l n=\"%s\">line %s</l>\n", pad, n, strings.Join(ref, "."))
			continue
		}
		fmt.Fprintf(b, "%s<div n=\"%s\">\n", pad, n)
		writeLevel(b, shape[1:], ref, indent+2)
		fmt.Fprintf(b, "%s</div>\n", pad)
	}
}

func mustWrite(tb testing.TB, path, content string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		tb.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}
