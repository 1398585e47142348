// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package urn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  URN
		level int
	}{
		{"namespace", "urn:cts:latinLit", URN{Namespace: "latinLit"}, LevelNamespace},
		{"group", "urn:cts:latinLit:phi1294", URN{Namespace: "latinLit", TextGroup: "phi1294"}, LevelTextGroup},
		{"work", "urn:cts:latinLit:phi1294.phi002", URN{Namespace: "latinLit", TextGroup: "phi1294", Work: "phi002"}, LevelWork},
		{
			"version",
			"urn:cts:latinLit:phi1294.phi002.perseus-lat2",
			URN{Namespace: "latinLit", TextGroup: "phi1294", Work: "phi002", Version: "perseus-lat2"},
			LevelVersion,
		},
		{
			"passage range",
			"urn:cts:latinLit:phi1294.phi002.perseus-lat2:1.pr.1-1.pr.3",
			URN{Namespace: "latinLit", TextGroup: "phi1294", Work: "phi002", Version: "perseus-lat2", Reference: "1.pr.1-1.pr.3"},
			LevelPassage,
		},
		{"upper case scheme", "URN:CTS:latinLit:phi1294", URN{Namespace: "latinLit", TextGroup: "phi1294"}, LevelTextGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.level, got.Level())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"urn:dts:latinLit:phi1294",
		"urn:cts:",
		"urn:cts::phi1294",
		"urn:cts:latinLit:phi1294..perseus",
		"urn:cts:latinLit:a.b.c.d",
		"urn:cts:latinLit:a.b.c:",
		"urn:cts:latinLit:a.b.c:1..2",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalidSyntax)
		})
	}
}

func TestURN_StringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"urn:cts:greekLit",
		"urn:cts:greekLit:tlg0012",
		"urn:cts:greekLit:tlg0012.tlg001",
		"urn:cts:greekLit:tlg0012.tlg001.perseus-grc2",
		"urn:cts:greekLit:tlg0012.tlg001.perseus-grc2:1.1-1.10",
	} {
		assert.Equal(t, in, MustParse(in).String())
	}
}

func TestURN_UpTo(t *testing.T) {
	u := MustParse("urn:cts:greekLit:tlg0012.tlg001.perseus-grc2:1.1")

	assert.Equal(t, "urn:cts:greekLit:tlg0012", u.UpTo(LevelTextGroup).String())
	assert.Equal(t, "urn:cts:greekLit:tlg0012.tlg001", u.UpTo(LevelWork).String())
	assert.Equal(t, "urn:cts:greekLit:tlg0012.tlg001.perseus-grc2", u.UpTo(LevelVersion).String())
	assert.Equal(t, u, u.UpTo(LevelPassage))
}

func TestIsExtension(t *testing.T) {
	assert.True(t, IsExtension("urn:cts:x:g", "urn:cts:x:g.w"))
	assert.True(t, IsExtension("urn:cts:x:g.w.v", "urn:cts:x:g.w.v:1"))
	assert.False(t, IsExtension("urn:cts:x:g", "urn:cts:x:g2.w"), "must respect delimiters")
	assert.False(t, IsExtension("urn:cts:x:g", "urn:cts:x:g"), "must be strict")
	assert.False(t, IsExtension("urn:cts:x:g", "urn:cts:x:g."))
}

func TestParseReference(t *testing.T) {
	t.Run("point", func(t *testing.T) {
		r, err := ParseReference("1.2.3")
		require.NoError(t, err)
		assert.False(t, r.IsRange())
		assert.Equal(t, 3, r.Depth())
		assert.Equal(t, "1.2.3", r.String())
		assert.Equal(t, "1.2.3", r.EndString())
	})

	t.Run("range", func(t *testing.T) {
		r, err := ParseReference("1.2-1.5")
		require.NoError(t, err)
		assert.True(t, r.IsRange())
		assert.Equal(t, []string{"1", "5"}, r.End)
		assert.Equal(t, "1.2-1.5", r.String())
	})

	t.Run("equal sides collapse", func(t *testing.T) {
		r, err := ParseReference("4-4")
		require.NoError(t, err)
		assert.False(t, r.IsRange())
		assert.Equal(t, "4", r.String())
	})

	t.Run("invalid", func(t *testing.T) {
		for _, in := range []string{"", "1-2-3", "1.-2", "1.2-3"} {
			_, err := ParseReference(in)
			assert.ErrorIs(t, err, ErrInvalidReference, in)
		}
	})
}

func TestSpanAndPrefix(t *testing.T) {
	assert.Equal(t, "1", Span([]string{"1"}, []string{"1"}).String())
	assert.Equal(t, "1-3", Span([]string{"1"}, []string{"3"}).String())

	assert.True(t, HasPrefix([]string{"1", "2", "3"}, []string{"1", "2"}))
	assert.False(t, HasPrefix([]string{"1"}, []string{"1", "2"}))
	assert.True(t, Reference{}.IsZero())
}
