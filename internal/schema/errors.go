// Package schema defines the typed record shapes for the two input feeds,
// the star-schema row types they map to, and the record-level error kinds.
package schema

import "fmt"

// ParseError reports a malformed source record. Path identifies the source
// unit (file or object key) and Index the 1-based record position within it.
type ParseError struct {
	Path  string
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s record %d: %v", e.Path, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CoercionError reports a field that is present but not convertible to the
// expected numeric type.
type CoercionError struct {
	Field string
	Value any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %q: cannot coerce %v (%T) to number", e.Field, e.Value, e.Value)
}

// MissingFieldError reports a required field that is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q: required but missing", e.Field)
}
