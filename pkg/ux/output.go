// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the nautilus CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette - deep ocean teals and parchment.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Key       lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:       lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return Styles.Muted.Render(string(i))
	}
}

// Printer writes styled output in one Mode. Results go to out, problems
// to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter creates a Printer.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the output mode.
func (p *Printer) Mode() Mode { return p.mode }

// Title prints a heading. Machine output omits it.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.out, text)
	default:
		fmt.Fprintln(p.out, Styles.Title.Render(text))
	}
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "OK: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning to errOut.
func (p *Printer) Warning(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.errOut, "WARN: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.errOut, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.errOut, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error to errOut.
func (p *Printer) Error(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.errOut, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.errOut, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Field prints a key and its value. Empty values are skipped.
func (p *Printer) Field(key, value string) {
	if value == "" {
		return
	}
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "%s\t%s\n", key, value)
	case ModePlain:
		fmt.Fprintf(p.out, "%s: %s\n", key, value)
	default:
		fmt.Fprintf(p.out, "%s %s\n", Styles.Key.Render(key+":"), value)
	}
}

// List prints one item per line.
func (p *Printer) List(items []string) {
	for _, item := range items {
		switch p.mode {
		case ModeMachine:
			fmt.Fprintln(p.out, item)
		case ModePlain:
			fmt.Fprintf(p.out, "%s %s\n", IconBullet, item)
		default:
			fmt.Fprintf(p.out, "%s %s\n", IconBullet.Render(), item)
		}
	}
}

// Box prints content under a title, framed in rich mode.
func (p *Printer) Box(title, content string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintln(p.out, content)
	case ModePlain:
		fmt.Fprintf(p.out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// Status prints a subject with a status icon and an optional reason.
func (p *Printer) Status(status Icon, subject, reason string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "%s\t%s\t%s\n", status, subject, reason)
	case ModePlain:
		fmt.Fprintf(p.out, "%s %s %s\n", status, subject, reason)
	default:
		if reason != "" {
			fmt.Fprintf(p.out, "%s %s %s\n", status.Render(), subject, Styles.Muted.Render("("+reason+")"))
		} else {
			fmt.Fprintf(p.out, "%s %s\n", status.Render(), subject)
		}
	}
}

// Counts prints labelled counts on one line, in the order given.
func (p *Printer) Counts(pairs ...any) {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		label := fmt.Sprint(pairs[i])
		value := fmt.Sprint(pairs[i+1])
		switch p.mode {
		case ModeMachine:
			parts = append(parts, label+"="+value)
		case ModePlain:
			parts = append(parts, value+" "+label)
		default:
			parts = append(parts, Styles.Highlight.Render(value)+" "+Styles.Muted.Render(label))
		}
	}
	if p.mode == ModeMachine {
		fmt.Fprintf(p.out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintln(p.out, strings.Join(parts, "  "))
}
