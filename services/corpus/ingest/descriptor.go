// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// DescriptorName is the metadata file of every textgroup and work
// directory.
const DescriptorName = "__cts__.xml"

// ErrDescriptor indicates a descriptor that is unreadable or describes an
// invalid collection.
var ErrDescriptor = errors.New("invalid descriptor")

type ctsLabel struct {
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Text string `xml:",chardata"`
}

type groupDescriptor struct {
	XMLName xml.Name   `xml:"textgroup"`
	URN     string     `xml:"urn,attr"`
	Names   []ctsLabel `xml:"groupname"`
}

type workDescriptor struct {
	XMLName  xml.Name            `xml:"work"`
	GroupURN string              `xml:"groupUrn,attr"`
	URN      string              `xml:"urn,attr"`
	Lang     string              `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Titles   []ctsLabel          `xml:"title"`
	Versions []versionDescriptor `xml:",any"`
}

type versionDescriptor struct {
	XMLName      xml.Name
	WorkURN      string     `xml:"workUrn,attr"`
	URN          string     `xml:"urn,attr"`
	Lang         string     `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Labels       []ctsLabel `xml:"label"`
	Descriptions []ctsLabel `xml:"description"`
}

func toLabels(in []ctsLabel) []collection.Label {
	var out []collection.Label
	for _, l := range in {
		text := strings.Join(strings.Fields(l.Text), " ")
		if text == "" {
			continue
		}
		out = append(out, collection.Label{Lang: l.Lang, Text: text})
	}
	collection.SortLabels(out)
	return out
}

func decode(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDescriptor, path, err)
	}
	return nil
}

// ParseGroup reads a textgroup descriptor.
//
// Outputs:
//
//	*collection.Node - The textgroup, without parent.
//	error - ErrDescriptor (wrapped) if the file is malformed or its urn
//	is not a textgroup URN.
func ParseGroup(path string) (*collection.Node, error) {
	var d groupDescriptor
	if err := decode(path, &d); err != nil {
		return nil, err
	}
	u, err := urn.Parse(d.URN)
	if err != nil || u.Level() != urn.LevelTextGroup {
		return nil, fmt.Errorf("%w: %s: %q is not a textgroup urn", ErrDescriptor, path, d.URN)
	}
	return &collection.Node{
		ID:     u.String(),
		Kind:   collection.KindTextGroup,
		Labels: toLabels(d.Names),
	}, nil
}

// WorkEntry is a parsed work descriptor: the work and its texts, with
// each text's expected file path.
type WorkEntry struct {
	Work  *collection.Node
	Texts []*collection.Node
}

// ParseWork reads a work descriptor.
//
// Description:
//
//	The work's parent is its groupUrn. Every edition, translation and
//	commentary child becomes a text whose path is
//	<work dir>/<group>.<work>.<version>.xml. Editions and commentaries
//	without xml:lang inherit the work's language. Text entries with an
//	unusable urn are skipped and returned in skipped.
//
// Outputs:
//
//	*WorkEntry - The work and its texts.
//	[]string - Version urns that were skipped.
//	error - ErrDescriptor (wrapped) if the descriptor itself is unusable.
func ParseWork(path string) (*WorkEntry, []string, error) {
	var d workDescriptor
	if err := decode(path, &d); err != nil {
		return nil, nil, err
	}
	wu, err := urn.Parse(d.URN)
	if err != nil || wu.Level() != urn.LevelWork {
		return nil, nil, fmt.Errorf("%w: %s: %q is not a work urn", ErrDescriptor, path, d.URN)
	}
	group := wu.UpTo(urn.LevelTextGroup).String()
	if d.GroupURN != "" && d.GroupURN != group {
		return nil, nil, fmt.Errorf("%w: %s: work %s declares group %s", ErrDescriptor, path, wu, d.GroupURN)
	}

	entry := &WorkEntry{Work: &collection.Node{
		ID:     wu.String(),
		Kind:   collection.KindWork,
		Parent: group,
		Lang:   d.Lang,
		Labels: toLabels(d.Titles),
	}}

	var skipped []string
	dir := filepath.Dir(path)
	for _, v := range d.Versions {
		kind, err := collection.KindFromType(v.XMLName.Local)
		if err != nil || !kind.Readable() {
			continue
		}
		vu, err := urn.Parse(v.URN)
		if err != nil || vu.Level() != urn.LevelVersion || vu.UpTo(urn.LevelWork).String() != entry.Work.ID {
			skipped = append(skipped, v.URN)
			continue
		}
		lang := v.Lang
		if lang == "" && kind != collection.KindTranslation {
			lang = d.Lang
		}
		entry.Texts = append(entry.Texts, &collection.Node{
			ID:          vu.String(),
			Kind:        kind,
			Parent:      entry.Work.ID,
			Lang:        lang,
			Labels:      toLabels(v.Labels),
			Description: toLabels(v.Descriptions),
			Path:        filepath.Join(dir, fmt.Sprintf("%s.%s.%s.xml", vu.TextGroup, vu.Work, vu.Version)),
		})
	}
	return entry, skipped, nil
}

// groupDescriptors lists <root>/data/*/__cts__.xml for every root, in
// root order.
func groupDescriptors(roots []string) ([]string, error) {
	var out []string
	for _, root := range roots {
		matches, err := filepath.Glob(filepath.Join(root, "data", "*", DescriptorName))
		if err != nil {
			return nil, fmt.Errorf("list textgroups in %s: %w", root, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// workDescriptors lists <group dir>/*/__cts__.xml.
func workDescriptors(groupPath string) ([]string, error) {
	return filepath.Glob(filepath.Join(filepath.Dir(groupPath), "*", DescriptorName))
}
