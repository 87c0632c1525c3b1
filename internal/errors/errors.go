// Package errors provides enhanced errors carrying a component, a category,
// and arbitrary context key/value pairs, plus re-exports of the stdlib
// helpers so callers only need one errors import.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies an error for routing and reporting decisions.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
	CategoryTimeout    Category = "timeout"
	CategoryNotFound   Category = "not-found"
	CategoryConflict   Category = "conflict"
	CategoryState      Category = "state"
	CategoryAuth       Category = "auth"
)

// EnhancedError wraps an error with component, category, and context metadata.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

// New wraps an existing error in an EnhancedError builder.
func New(err error) *EnhancedError {
	return &EnhancedError{Err: err}
}

// Newf creates an EnhancedError from a format string.
func Newf(format string, args ...any) *EnhancedError {
	return &EnhancedError{Err: fmt.Errorf(format, args...)}
}

// Component records which subsystem produced the error.
func (e *EnhancedError) Component(name string) *EnhancedError {
	e.component = name
	return e
}

// Category records the error category.
func (e *EnhancedError) Category(c Category) *EnhancedError {
	e.category = c
	return e
}

// Context attaches a key/value pair to the error.
func (e *EnhancedError) Context(key string, value any) *EnhancedError {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

// Build finalizes the builder. It exists for call sites that want to make
// the construction explicit; the value is usable without it.
func (e *EnhancedError) Build() error { return e }

func (e *EnhancedError) Error() string {
	if e.component != "" {
		return e.component + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// GetCategory returns the error's category, or empty if unset.
func (e *EnhancedError) GetCategory() Category { return e.category }

// GetComponent returns the error's component, or empty if unset.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetContext returns the value stored under key, if any.
func (e *EnhancedError) GetContext(key string) (any, bool) {
	v, ok := e.context[key]
	return v, ok
}

// Stdlib re-exports.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// Unwrap returns the result of calling Unwrap on err, if available.
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join wraps errors.Join.
func Join(errs ...error) error { return errors.Join(errs...) }
