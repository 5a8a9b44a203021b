// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

import (
	"errors"
	"fmt"
)

var (
	// ErrParse indicates a response payload that does not have the expected
	// format. It points at a firmware mismatch, not an unreliable link.
	ErrParse = errors.New("gastro: unparseable response")

	// ErrProtocolMismatch indicates a response that does not acknowledge the
	// command that was sent.
	ErrProtocolMismatch = errors.New("gastro: unexpected acknowledgement")

	// ErrOutOfRange indicates a command argument the firmware cannot accept.
	ErrOutOfRange = errors.New("gastro: argument out of range")
)

// ParseError describes a payload that failed to decode.
type ParseError struct {
	Field    string
	Response string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gastro: unable to parse %s from response %q", e.Field, e.Response)
}

// Unwrap lets errors.Is match ErrParse.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

func parseError(field, response string) error {
	return &ParseError{Field: field, Response: response}
}
