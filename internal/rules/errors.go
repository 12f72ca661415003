package rules

import (
	"errors"
	"fmt"
)

// ErrRuleDirectoryMissing is returned when the rule directory does not exist or is not a directory.
var ErrRuleDirectoryMissing = errors.New("rule directory missing")

// LoadError reports a rule store that could not be read at all.
type LoadError struct {
	// Path is the directory or file that failed to load
	Path string

	// Message describes the error
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load rules from %q: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load rules from %q: %s", e.Path, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError reports a malformed rule file, triple or rule record. The loader logs it and
// skips the offending unit.
type ParseError struct {
	// Path is the rule file
	Path string

	// Line is the 1-indexed line of the offending node, 0 when unknown
	Line int

	// Subject is the rule IRI when the error concerns one record
	Subject string

	// Message describes the problem
	Message string

	// Cause is the underlying parser error, if any
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = fmt.Sprintf("rule %s: %s", e.Subject, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %q at line %d: %s", e.Path, e.Line, msg)
	}
	return fmt.Sprintf("parse error in %q: %s", e.Path, msg)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}
