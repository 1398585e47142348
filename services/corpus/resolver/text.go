// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/AleutianAI/nautilus/services/corpus/cache"
	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// Passage is a resolved part of a text together with the text's
// metadata.
type Passage struct {
	ID        string             `cbor:"1,keyasint"`
	TextID    string             `cbor:"2,keyasint"`
	Kind      string             `cbor:"3,keyasint"`
	Lang      string             `cbor:"4,keyasint,omitempty"`
	Labels    []collection.Label `cbor:"5,keyasint,omitempty"`
	Citation  []string           `cbor:"6,keyasint,omitempty"`
	Reference string             `cbor:"7,keyasint,omitempty"`
	Level     string             `cbor:"8,keyasint,omitempty"`
	Text      string             `cbor:"9,keyasint"`
	XML       string             `cbor:"10,keyasint"`
	Prev      string             `cbor:"11,keyasint,omitempty"`
	Next      string             `cbor:"12,keyasint,omitempty"`
}

// Siblings are the references around a passage. Either is empty at the
// edges of the text.
type Siblings struct {
	Prev string `cbor:"1,keyasint,omitempty"`
	Next string `cbor:"2,keyasint,omitempty"`
}

// target is a text identity resolved against the store, with the
// reference it addresses.
type target struct {
	node *collection.Node
	ref  urn.Reference
}

// resolveText maps a possibly partial URN and an optional subreference to
// a stored readable text.
//
// Description:
//
//	A work-level URN resolves to its first edition by identity. A
//	reference inside the URN is used when subref is empty.
//
// Outputs:
//
//	target - The text and the parsed reference.
//	error - ErrMissingParameter, ErrInvalidURNSyntax, ErrInvalidURN or
//	ErrUnknownCollection (wrapped).
func (r *Resolver) resolveText(ctx context.Context, textID, subref string) (target, error) {
	var t target
	if textID == "" {
		return t, fmt.Errorf("%w: urn", ErrMissingParameter)
	}
	u, err := urn.Parse(textID)
	if err != nil {
		return t, err
	}
	if subref == "" {
		subref = u.Reference
	}
	if subref != "" {
		if t.ref, err = urn.ParseReference(subref); err != nil {
			return t, err
		}
	}

	// Branch on the identity parts: Level counts the reference too.
	switch {
	case u.Work == "":
		return t, fmt.Errorf("%w: %s does not address a text", ErrInvalidURN, textID)
	case u.Version == "":
		t.node, err = r.firstEdition(ctx, u.UpTo(urn.LevelWork).String())
	default:
		t.node, err = r.store.Get(ctx, u.UpTo(urn.LevelVersion).String())
	}
	if err != nil {
		return t, err
	}
	if !t.node.Readable() {
		return t, fmt.Errorf("%w: %s is a %s", ErrInvalidURN, t.node.ID, t.node.Kind)
	}
	return t, nil
}

func (r *Resolver) firstEdition(ctx context.Context, workID string) (*collection.Node, error) {
	children, err := r.store.Children(ctx, workID)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.Kind == collection.KindEdition {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no edition under %s", ErrUnknownCollection, workID)
}

// document loads the parsed text, through the text cache when enabled.
func (r *Resolver) document(n *collection.Node) (*citation.Document, error) {
	if r.texts != nil {
		if doc, ok := r.texts.Get(n.ID); ok {
			return doc, nil
		}
	}
	doc, err := citation.Open(n.Path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Error("text file is missing",
			slog.String("id", n.ID),
			slog.String("path", n.Path))
		return nil, fmt.Errorf("%w: File matching %s does not exist", ErrUnknownCollection, n.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", n.ID, err)
	}
	if r.texts != nil {
		r.texts.Set(n.ID, doc, 0)
	}
	return doc, nil
}

func (r *Resolver) passage(ctx context.Context, textID, subref string) (*Passage, error) {
	t, err := r.resolveText(ctx, textID, subref)
	if err != nil {
		return nil, err
	}
	doc, err := r.document(t.node)
	if err != nil {
		return nil, err
	}
	extracted, err := doc.Passage(t.ref)
	if err != nil {
		return nil, err
	}

	p := &Passage{
		ID:        t.node.ID,
		TextID:    t.node.ID,
		Kind:      t.node.Kind.String(),
		Lang:      t.node.Lang,
		Labels:    t.node.Labels,
		Reference: extracted.Reference,
		Level:     extracted.Level,
		Text:      extracted.Text,
		XML:       extracted.XML,
		Prev:      extracted.Prev,
		Next:      extracted.Next,
	}
	if t.node.Citation != nil {
		p.Citation = t.node.Citation.Names()
	}
	if p.Reference != "" {
		p.ID += ":" + p.Reference
	}
	return p, nil
}

// GetTextualNode extracts a passage of a text.
//
// Description:
//
//	textID may be a version URN, a work URN (resolved to its first
//	edition) or either with a reference. An empty subref and no
//	reference in the URN return the whole text.
//
// Outputs:
//
//	*Passage - The passage with the text's labels and neighbours.
//	error - *Error with CodeUnknownCollection when the text or its file
//	is missing, CodeInvalidURN or CodeInvalidURNSyntax for bad input.
func (r *Resolver) GetTextualNode(ctx context.Context, textID, subref string) (*Passage, error) {
	var p *Passage
	err := r.read(ctx, func() error {
		key := r.cache.Key(r.name, opPassage, textID, subref)
		var err error
		p, err = cache.GetOr(ctx, r.cache, key, r.timeout, func(ctx context.Context) (*Passage, error) {
			return r.passage(ctx, textID, subref)
		})
		return err
	})
	if err != nil {
		return nil, classify("GetTextualNode", textID, err)
	}
	return p, nil
}

// GetSiblings returns the references before and after a passage.
//
// Outputs:
//
//	Siblings - Neighbouring references; ranges move by their width.
//	error - *Error with CodeMissingParameter when no reference is given.
func (r *Resolver) GetSiblings(ctx context.Context, textID, subref string) (Siblings, error) {
	var s Siblings
	err := r.read(ctx, func() error {
		key := r.cache.Key(r.name, opSiblings, textID, subref)
		var err error
		s, err = cache.GetOr(ctx, r.cache, key, r.timeout, func(ctx context.Context) (Siblings, error) {
			t, err := r.resolveText(ctx, textID, subref)
			if err != nil {
				return Siblings{}, err
			}
			if t.ref.IsZero() {
				return Siblings{}, fmt.Errorf("%w: reference", ErrMissingParameter)
			}
			p, err := r.passage(ctx, textID, subref)
			if err != nil {
				return Siblings{}, err
			}
			return Siblings{Prev: p.Prev, Next: p.Next}, nil
		})
		return err
	})
	if err != nil {
		return Siblings{}, classify("GetSiblings", textID, err)
	}
	return s, nil
}

// GetReffs lists the valid references of a text.
//
// Description:
//
//	Level is absolute and 1-based; levels at or above the depth of
//	subref are lifted to the level just below it and a negative level
//	selects the deepest level. Results are cached with the reference
//	timeout.
//
// Outputs:
//
//	[]string - References in document order.
//	error - *Error with CodeInvalidLevel when level exceeds the citation
//	depth.
func (r *Resolver) GetReffs(ctx context.Context, textID string, level int, subref string) ([]string, error) {
	var refs []string
	err := r.read(ctx, func() error {
		key := r.cache.Key(r.name, opReffs, textID, level, subref)
		var err error
		refs, err = cache.GetOr(ctx, r.cache, key, r.reffsTimeout, func(ctx context.Context) ([]string, error) {
			t, err := r.resolveText(ctx, textID, subref)
			if err != nil {
				return nil, err
			}
			doc, err := r.document(t.node)
			if err != nil {
				return nil, err
			}
			return doc.Reffs(level, t.ref)
		})
		return err
	})
	if err != nil {
		return nil, classify("GetReffs", textID, err)
	}
	return refs, nil
}

// GetGroupedReffs lists references like GetReffs and groups them into
// ranges of up to groupBy references sharing the same parent.
func (r *Resolver) GetGroupedReffs(ctx context.Context, textID string, level int, subref string, groupBy int) ([]string, error) {
	refs, err := r.GetReffs(ctx, textID, level, subref)
	if err != nil || len(refs) == 0 {
		return refs, err
	}
	depth := strings.Count(refs[0], ".") + 1
	return citation.GroupReferences(refs, groupBy, depth), nil
}
