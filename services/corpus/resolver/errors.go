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
	"errors"
	"fmt"

	"github.com/AleutianAI/nautilus/services/corpus/citation"
	"github.com/AleutianAI/nautilus/services/corpus/collection"
	"github.com/AleutianAI/nautilus/services/corpus/dispatch"
	"github.com/AleutianAI/nautilus/services/corpus/urn"
)

// Code is a CTS error code.
type Code int

// CTS error codes.
const (
	CodeNone              Code = 0
	CodeMissingParameter  Code = 1
	CodeInvalidURNSyntax  Code = 2
	CodeInvalidURN        Code = 3
	CodeInvalidLevel      Code = 4
	CodeUnknownCollection Code = 6
)

func (c Code) String() string {
	switch c {
	case CodeMissingParameter:
		return "MissingParameter"
	case CodeInvalidURNSyntax:
		return "InvalidURNSyntax"
	case CodeInvalidURN:
		return "InvalidURN"
	case CodeInvalidLevel:
		return "InvalidLevel"
	case CodeUnknownCollection:
		return "UnknownCollection"
	default:
		return "None"
	}
}

// Error kinds surfaced by the resolver. They are the same values as the
// lower-level sentinels, so errors.Is works against either.
var (
	ErrUnknownCollection = collection.ErrUnknownCollection
	ErrInvalidURN        = urn.ErrInvalidURN
	ErrInvalidURNSyntax  = urn.ErrInvalidSyntax
	ErrInvalidLevel      = citation.ErrInvalidLevel
	ErrUndispatched      = dispatch.ErrUndispatched

	// ErrMissingParameter indicates a required argument that was empty.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrClosed indicates a call on a closed resolver.
	ErrClosed = errors.New("resolver is closed")
)

// Error is a failed resolver operation with its CTS code.
type Error struct {
	Code Code
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the CTS code carried by err, or CodeNone.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}

// classify wraps err in an *Error with the code of the first matching
// sentinel. Errors that match no kind are returned as they are.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	code := CodeNone
	switch {
	case errors.Is(err, ErrMissingParameter):
		code = CodeMissingParameter
	case errors.Is(err, urn.ErrInvalidSyntax), errors.Is(err, urn.ErrInvalidReference):
		code = CodeInvalidURNSyntax
	case errors.Is(err, urn.ErrInvalidURN):
		code = CodeInvalidURN
	case errors.Is(err, citation.ErrInvalidLevel):
		code = CodeInvalidLevel
	case errors.Is(err, collection.ErrUnknownCollection), errors.Is(err, citation.ErrUnknownReference):
		code = CodeUnknownCollection
	}
	if code == CodeNone {
		return err
	}
	return &Error{Code: code, Op: op, ID: id, Err: err}
}
