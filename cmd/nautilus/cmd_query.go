// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nautilus/pkg/ux"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
)

// subref returns the optional second argument.
func subref(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func (a *app) metadataCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "metadata [id]",
		Short: "Describe a collection; without an id, the inventory root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			md, err := r.GetMetadata(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.printMetadata(md, lang)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "eng", "preferred label language")
	return cmd
}

func (a *app) printMetadata(md *collection.Metadata, lang string) {
	p := a.printer
	p.Title(pick(md.Labels, lang))
	p.Field("id", md.ID)
	p.Field("kind", md.Kind)
	p.Field("parent", md.Parent)
	p.Field("lang", md.Lang)
	p.Field("description", pick(md.Description, lang))
	if md.Readable {
		p.Field("citation", strings.Join(md.Citation, ", "))
	}
	p.Field("readable", strconv.Itoa(len(md.ReadableDescendants)))
	for _, m := range md.Members {
		icon := ux.IconBullet
		if m.Readable {
			icon = ux.IconSuccess
		}
		p.Status(icon, m.ID, pick(m.Labels, lang))
	}
}

// pick returns the label in lang, else the first one.
func pick(labels []collection.Label, lang string) string {
	for _, l := range labels {
		if l.Lang == lang {
			return l.Text
		}
	}
	if len(labels) > 0 {
		return labels[0].Text
	}
	return ""
}

func (a *app) reffsCmd() *cobra.Command {
	var level, groupBy int
	cmd := &cobra.Command{
		Use:   "reffs <text-urn> [subref]",
		Short: "List the references of a text, optionally below a passage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var refs []string
			if groupBy > 1 {
				refs, err = r.GetGroupedReffs(cmd.Context(), args[0], level, subref(args), groupBy)
			} else {
				refs, err = r.GetReffs(cmd.Context(), args[0], level, subref(args))
			}
			if err != nil {
				return err
			}
			a.printer.List(refs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 1, "citation level, -1 for the deepest")
	cmd.Flags().IntVarP(&groupBy, "group-by", "g", 1, "group references into ranges of this size")
	return cmd
}

func (a *app) passageCmd() *cobra.Command {
	var xml bool
	cmd := &cobra.Command{
		Use:   "passage <urn> [subref]",
		Short: "Print a passage of a text",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			passage, err := r.GetTextualNode(cmd.Context(), args[0], subref(args))
			if err != nil {
				return err
			}
			body := passage.Text
			if xml {
				body = passage.XML
			}
			a.printer.Box(passage.ID, body)
			a.printer.Field("prev", passage.Prev)
			a.printer.Field("next", passage.Next)
			return nil
		},
	}
	cmd.Flags().BoolVar(&xml, "xml", false, "print the TEI fragment instead of plain text")
	return cmd
}

func (a *app) siblingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "siblings <urn> [subref]",
		Short: "Print the references before and after a passage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := r.GetSiblings(cmd.Context(), args[0], subref(args))
			if err != nil {
				return err
			}
			a.printer.Field("prev", s.Prev)
			a.printer.Field("next", s.Next)
			return nil
		},
	}
}
