package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"wabridge/pkg/session"
)

// ValidationError reports missing or empty required fields, keyed by field
// name. Dispatch fails fast on it; no transport call is made.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return "invalid request: " + strings.Join(names, ", ")
}

// SessionNotReadyError means the session state does not permit sends.
type SessionNotReadyError struct {
	State session.State
}

func (e *SessionNotReadyError) Error() string {
	return "the session is not connected: " + string(e.State)
}

// MediaFetchError means the remote media file was unreachable, oversized, or
// undecodable. The send is aborted before any transport call.
type MediaFetchError struct {
	URL string
	Err error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("fetch media %s: %v", e.URL, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// TransportError passes through whatever detail the transport supplied for a
// failed send. No reclassification happens here; callers should treat it as
// retryable-unknown.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
