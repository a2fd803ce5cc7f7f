package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// KindUnavailable means no API key or no network path to the provider.
	KindUnavailable ErrorKind = "unavailable"
	// KindTimeout means the hard completion deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindUpstream means the provider returned a non-2xx status.
	KindUpstream ErrorKind = "upstream_error"
	// KindMalformed means the provider returned an unparsable body.
	KindMalformed ErrorKind = "malformed_response"
)

// ChatError is the typed failure returned by providers.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *ChatError) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to KindUpstream for errors that
// did not come from a provider.
func KindOf(err error) ErrorKind {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUpstream
}
