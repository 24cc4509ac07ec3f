// errs.go — sentinel error kinds for the attribute stream broker core.
// Translates internal/mcp/errors.go's self-describing error-code
// convention from JSON-RPC wire errors (out of scope for this core) to
// plain Go errors checkable with errors.As.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories from spec.md §7.
type Kind string

const (
	KindNullArgument         Kind = "null_argument"
	KindInvalidName          Kind = "invalid_name"
	KindInvalidArgument      Kind = "invalid_argument"
	KindPipResolutionError   Kind = "pip_resolution_error"
	KindUpstreamTerminalError Kind = "upstream_terminal_error"
)

// ValidationError is a construction-time failure of an Invocation.
// These are caller-facing control flow, not incidents, so they carry
// no wrapped cause or stack trace.
type ValidationError struct {
	Kind  Kind
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NullArgument reports a required field that was missing/zero.
func NullArgument(field string) error {
	return &ValidationError{Kind: KindNullArgument, Field: field, Msg: "must not be null/empty"}
}

// InvalidName reports a name that fails the attribute-name grammar.
func InvalidName(name string) error {
	return &ValidationError{Kind: KindInvalidName, Field: "name", Msg: fmt.Sprintf("%q does not match segment('.'segment){1..9}", name)}
}

// InvalidArgument reports a negative duration or retry_limit.
func InvalidArgument(field, msg string) error {
	return &ValidationError{Kind: KindInvalidArgument, Field: field, Msg: msg}
}

// PipError wraps a failure surfaced by the PIP registry or the
// upstream transport. Kind distinguishes resolution-time failures
// (raised constructing the upstream) from terminal failures (raised
// mid-stream, triggering eviction).
type PipError struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *PipError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *PipError) Unwrap() error { return e.err }

// PipResolutionError wraps a failure raised while resolving an
// invocation to an upstream (PIP registry lookup/construction).
func PipResolutionError(msg string, cause error) error {
	return &PipError{Kind: KindPipResolutionError, Msg: msg, err: errors.WithStack(cause)}
}

// UpstreamTerminalError wraps a transport-level failure of an already
// running upstream. It is terminal: it fans out to current subscribers
// and triggers eviction.
func UpstreamTerminalError(msg string, cause error) error {
	return &PipError{Kind: KindUpstreamTerminalError, Msg: msg, err: errors.WithStack(cause)}
}

// KindOf extracts the Kind from any error produced by this package, or
// "" if err was not produced here.
func KindOf(err error) Kind {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Kind
	}
	var p *PipError
	if errors.As(err, &p) {
		return p.Kind
	}
	return ""
}
