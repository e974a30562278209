package compiler

import (
	"errors"
	"fmt"
)

// Error is implemented by every error this package produces, so callers can
// classify a failure as a compile problem without enumerating the kinds.
type Error interface {
	error
	compilerError()
}

// IsError reports whether err (or anything it wraps) came from the compiler.
func IsError(err error) bool {
	var ce Error
	return errors.As(err, &ce)
}

type simpleError string

func (e simpleError) Error() string  { return string(e) }
func (e simpleError) compilerError() {}

const (
	// ErrMutualExclusion: a fragment declared both run and from.
	ErrMutualExclusion = simpleError("fragment cannot have both 'run' and 'from'")
	// ErrNoContent: a fragment declared neither run nor from.
	ErrNoContent = simpleError("fragment must have either 'run' or 'from'")
	// ErrNoMachine: no machine resolvable for a fragment.
	ErrNoMachine = simpleError("no machine specified for fragment and no default machine in chain")
)

// SyntaxError is a malformed document.
type SyntaxError struct {
	Line   int
	Detail string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid workflow syntax: line %d: %s", e.Line, e.Detail)
}
func (e *SyntaxError) compilerError() {}

// MissingRequiredError is a required node or argument that was absent.
type MissingRequiredError struct {
	Field   string
	Context string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("missing required field: %s in %s", e.Field, e.Context)
}
func (e *MissingRequiredError) compilerError() {}

// UnsupportedVersionError is a version node with an unknown value.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version: %s", e.Version)
}
func (e *UnsupportedVersionError) compilerError() {}

// InvalidURLError is an import URL that cannot be parsed.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL: %s", e.URL)
}
func (e *InvalidURLError) compilerError() {}

// FetchError is a failure retrieving an import.
type FetchError struct {
	URL    string
	Reason string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch import from %s: %s", e.URL, e.Reason)
}
func (e *FetchError) compilerError() {}

// CircularImportError is an import that reached itself again.
type CircularImportError struct {
	URL string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("circular import detected: %s", e.URL)
}
func (e *CircularImportError) compilerError() {}

// UnknownNodeError is a node name the chain body does not allow.
type UnknownNodeError struct {
	Node string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node type: %s", e.Node)
}
func (e *UnknownNodeError) compilerError() {}

// InvalidImportNodeError is a top-level node an imported document may not have.
type InvalidImportNodeError struct {
	Node string
}

func (e *InvalidImportNodeError) Error() string {
	return fmt.Sprintf("imported files can only contain fragment/parallel nodes, found: %s", e.Node)
}
func (e *InvalidImportNodeError) compilerError() {}

// InvalidTriggerError is a caller trigger the workflow does not declare.
type InvalidTriggerError struct {
	Trigger   string
	Supported []string
}

func (e *InvalidTriggerError) Error() string {
	return fmt.Sprintf("workflow does not support trigger '%s', only: %v", e.Trigger, e.Supported)
}
func (e *InvalidTriggerError) compilerError() {}
