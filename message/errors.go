// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrMalformed is returned when a message cannot be decoded at all: it is not
// JSON, carries unknown fields, or trails extra data.
var ErrMalformed = errors.New("malformed message")

// FieldErrors is the set of validation failures of a message, keyed by wire
// field name.  A nil or empty FieldErrors means the message is valid.
type FieldErrors map[string][]string

// Add records a failure for the field.  Duplicate reasons are recorded once.
func (e *FieldErrors) Add(field, reason string) {
	if *e == nil {
		*e = make(FieldErrors)
	}
	if slices.Contains((*e)[field], reason) {
		return
	}
	(*e)[field] = append((*e)[field], reason)
}

// Merge adds every failure of other to e.
func (e *FieldErrors) Merge(other FieldErrors) {
	for field, reasons := range other {
		for _, reason := range reasons {
			e.Add(field, reason)
		}
	}
}

// Has reports whether the field failed for the given reason.
func (e FieldErrors) Has(field, reason string) bool {
	return slices.Contains(e[field], reason)
}

// Empty reports whether no failure was recorded.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// Len returns the number of recorded failures.
func (e FieldErrors) Len() int {
	n := 0
	for _, reasons := range e {
		n += len(reasons)
	}
	return n
}

// Fields returns the failed fields in sorted order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Messages returns every failure rendered as "<field> <reason>", sorted by
// field.
func (e FieldErrors) Messages() []string {
	msgs := make([]string, 0, e.Len())
	for _, field := range e.Fields() {
		for _, reason := range e[field] {
			msgs = append(msgs, field+" "+reason)
		}
	}
	return msgs
}

// String joins all failures.
func (e FieldErrors) String() string {
	return strings.Join(e.Messages(), ", ")
}

// Err returns nil for an empty set and a *ValidationError otherwise.
func (e FieldErrors) Err(kind Kind) error {
	if e.Empty() {
		return nil
	}
	return &ValidationError{Kind: kind, Fields: e}
}

// ValidationError is returned by the parse functions when a message decodes
// but breaks one of its rules.
type ValidationError struct {
	Kind   Kind
	Fields FieldErrors
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s message: %v", e.Kind, e.Fields)
}

// decodeStrict decodes a single JSON value into v, rejecting unknown fields
// and trailing data.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	return nil
}

// requireField records a missing required field.
func requireField(errs *FieldErrors, field string, present bool) {
	if !present {
		errs.Add(field, "is required")
	}
}
