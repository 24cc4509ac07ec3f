package activestream

import "errors"

// ErrTerminated is returned by Subscribe once the stream has reached
// StateTerminated. It is ordinary control flow for the broker (C5),
// which reacts by constructing a fresh stream for the same
// invocation — not an incident, so it carries no stack trace.
var ErrTerminated = errors.New("activestream: stream is terminated")
