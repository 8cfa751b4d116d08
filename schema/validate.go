// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

import (
	"fmt"
	"regexp"
)

// ValidationError reports a shape value that violates one of its
// declared bounds. Validation failures are caller defects: the
// request builder reports them before anything reaches the wire and
// they are never retried.
type ValidationError struct {
	// Path is the dotted logical path of the offending field.
	Path string
	// Bound describes the violated constraint.
	Bound string
}

// Error is part of the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %q: %s", e.Path, e.Bound)
}

// IsValidationError reports whether err is a shape validation
// failure.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// The helpers below are the vocabulary generated validators are
// composed from.

// CheckRequired reports a missing required field.
func CheckRequired(v *Struct, field string) error {
	if _, ok := v.Get(field); !ok {
		return &ValidationError{Path: field, Bound: "required field not set"}
	}
	return nil
}

// CheckStringLength bounds the length of a string field. A max of
// zero means unbounded above.
func CheckStringLength(v *Struct, field string, min, max int) error {
	raw, ok := v.Get(field)
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	if len(s) < min {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("length %d below minimum %d", len(s), min)}
	}
	if max > 0 && len(s) > max {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("length %d above maximum %d", len(s), max)}
	}
	return nil
}

// CheckPattern matches a string field against an anchored pattern.
func CheckPattern(v *Struct, field, pattern string) error {
	raw, ok := v.Get(field)
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	matched, err := regexp.MatchString("^(?:"+pattern+")$", s)
	if err != nil {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("invalid pattern %q", pattern)}
	}
	if !matched {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("value does not match pattern %q", pattern)}
	}
	return nil
}

// CheckIntRange bounds an integer field inclusively.
func CheckIntRange(v *Struct, field string, min, max int64) error {
	raw, ok := v.Get(field)
	if !ok {
		return nil
	}
	i, ok := raw.(int64)
	if !ok {
		return nil
	}
	if i < min {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("value %d below minimum %d", i, min)}
	}
	if i > max {
		return &ValidationError{Path: field, Bound: fmt.Sprintf("value %d above maximum %d", i, max)}
	}
	return nil
}

// All composes validators, returning the first failure.
func All(checks ...func(*Struct) error) func(*Struct) error {
	return func(v *Struct) error {
		for _, check := range checks {
			if err := check(v); err != nil {
				return err
			}
		}
		return nil
	}
}
