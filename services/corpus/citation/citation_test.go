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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nautilus/internal/corpustest"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

func mustDoc(t *testing.T, shape ...int) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(corpustest.TEI(shape)))
	require.NoError(t, err)
	return doc
}

func ref(t *testing.T, s string) urn.Reference {
	t.Helper()
	if s == "" {
		return urn.Reference{}
	}
	r, err := urn.ParseReference(s)
	require.NoError(t, err)
	return r
}

func TestBuild(t *testing.T) {
	t.Run("innermost first", func(t *testing.T) {
		cit := Build([]Pattern{
			{Name: "line", Replacement: "#xpath(/tei:TEI//tei:div[@n='$1']/tei:l[@n='$2'])"},
			{Name: "poem", Replacement: "#xpath(/tei:TEI//tei:div[@n='$1'])"},
		})

		require.NotNil(t, cit)
		assert.Equal(t, 2, cit.Depth())
		assert.Equal(t, []string{"poem", "line"}, cit.Names())
		assert.Equal(t, `/tei:TEI//tei:div[@n="$1"]`, cit.Selector)
		assert.Equal(t, "line", cit.Level(2).Name)
		assert.Nil(t, cit.Level(3))
		assert.Nil(t, cit.Level(0))
	})

	t.Run("empty", func(t *testing.T) {
		var cit *Citation
		assert.True(t, Build(nil).IsEmpty())
		assert.Equal(t, 0, cit.Depth())
		assert.True(t, Build([]Pattern{{Name: "x"}}).IsEmpty())
	})

	t.Run("levels round trip", func(t *testing.T) {
		cit := mustDoc(t, 2, 2, 3).Citation()
		levels := cit.Levels()
		names := make([]string, len(levels))
		sels := make([]string, len(levels))
		for i, l := range levels {
			names[i], sels[i] = l.Name, l.Selector
		}
		assert.Equal(t, cit, FromLevels(names, sels))
	})
}

func TestCompileSelector(t *testing.T) {
	sel, err := compileSelector(`/tei:TEI//tei:div[@type="edition" and @n="$1"]/tei:l[@n="$2"][@rend]`)
	require.NoError(t, err)
	require.Len(t, sel.steps, 3)
	assert.True(t, sel.steps[1].descendant)
	assert.Equal(t, "div", sel.steps[1].local)
	assert.Equal(t, 2, sel.vars)
	assert.True(t, sel.steps[2].preds[1].exists)

	for _, bad := range []string{"", "tei:TEI", "/tei:TEI/[@n='1']", `/a[@n="$x"]`, `/a[n="1"]`, "/a[@n='1'"} {
		_, err := compileSelector(NormalizeSelector(bad))
		assert.ErrorIs(t, err, ErrSelector, bad)
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader("<TEI><text>"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(strings.NewReader(corpustest.TEI(nil)))
	assert.ErrorIs(t, err, ErrNoCitation)
}

func TestDocument_Reffs(t *testing.T) {
	doc := mustDoc(t, 2, 2, 3)

	tests := []struct {
		name  string
		level int
		ref   string
		want  []string
	}{
		{"top level", 1, "", []string{"1", "2"}},
		{"second level", 2, "", []string{"1.1", "1.2", "2.1", "2.2"}},
		{"deepest via negative", -1, "2.2", []string{"2.2.1", "2.2.2", "2.2.3"}},
		{"level lifted below ref", 1, "1", []string{"1.1", "1.2"}},
		{"range", 3, "1.2-2.1", []string{"1.2.1", "1.2.2", "1.2.3", "2.1.1", "2.1.2", "2.1.3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc.Reffs(tt.level, ref(t, tt.ref))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("level beyond depth", func(t *testing.T) {
		_, err := doc.Reffs(4, urn.Reference{})
		assert.ErrorIs(t, err, ErrInvalidLevel)

		_, err = doc.Reffs(1, ref(t, "1.1.1"))
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := doc.Reffs(2, ref(t, "9"))
		assert.ErrorIs(t, err, ErrUnknownReference)

		_, err = doc.Reffs(3, ref(t, "1.1-9.9"))
		assert.ErrorIs(t, err, ErrUnknownReference)
	})
}

func TestDocument_Passage(t *testing.T) {
	doc := mustDoc(t, 2, 2, 3)

	t.Run("point with neighbours", func(t *testing.T) {
		p, err := doc.Passage(ref(t, "1.2.3"))
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", p.Reference)
		assert.Equal(t, "line", p.Level)
		assert.Equal(t, "line 1.2.3", p.Text)
		assert.Equal(t, `<l xmlns="http://www.tei-c.org/ns/1.0" n="3">line 1.2.3</l>`, p.XML)
		assert.Equal(t, "1.2.2", p.Prev)
		assert.Equal(t, "2.1.1", p.Next)
	})

	t.Run("boundaries", func(t *testing.T) {
		first, err := doc.Passage(ref(t, "1"))
		require.NoError(t, err)
		assert.Empty(t, first.Prev)
		assert.Equal(t, "2", first.Next)

		last, err := doc.Passage(ref(t, "2"))
		require.NoError(t, err)
		assert.Equal(t, "1", last.Prev)
		assert.Empty(t, last.Next)
	})

	t.Run("range neighbours keep width", func(t *testing.T) {
		p, err := doc.Passage(ref(t, "1.2-2.1"))
		require.NoError(t, err)
		assert.Equal(t, "1.1", p.Prev)
		assert.Equal(t, "2.2", p.Next)
		assert.Contains(t, p.Text, "line 1.2.1")
		assert.Contains(t, p.Text, "line 2.1.3")
		assert.NotContains(t, p.Text, "line 2.2.1")
	})

	t.Run("whole text", func(t *testing.T) {
		p, err := doc.Passage(urn.Reference{})
		require.NoError(t, err)
		assert.Empty(t, p.Reference)
		assert.True(t, strings.HasPrefix(p.Text, "line 1.1.1"))
		assert.True(t, strings.HasSuffix(p.Text, "line 2.2.3"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := doc.Passage(ref(t, "3"))
		assert.ErrorIs(t, err, ErrUnknownReference)

		_, err = doc.Passage(ref(t, "1.1.1.1"))
		assert.ErrorIs(t, err, ErrUnknownReference)
	})
}

func TestGroupReferences(t *testing.T) {
	t.Run("seven by two", func(t *testing.T) {
		refs := []string{"1", "2", "3", "4", "5", "6", "7"}
		got := GroupReferences(refs, 2, 1)
		assert.Equal(t, []string{"1-2", "3-4", "5-6", "7"}, got)
	})

	t.Run("never crosses parents", func(t *testing.T) {
		refs := []string{"1.1", "1.2", "1.3", "2.1", "2.2"}
		got := GroupReferences(refs, 2, 2)
		assert.Equal(t, []string{"1.1-1.2", "1.3", "2.1-2.2"}, got)
	})

	t.Run("degenerate arguments", func(t *testing.T) {
		assert.Equal(t, []string{"1", "2"}, GroupReferences([]string{"1", "", "2"}, 0, 0))
		assert.Nil(t, GroupReferences(nil, 3, 1))
	})
}
