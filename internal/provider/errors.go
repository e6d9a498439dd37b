package provider

import "fmt"

// Kind classifies a provider failure so callers can decide whether to retry,
// back off, or surface a configuration problem.
type Kind string

const (
	// KindRateLimited means the upstream throttled us; back off before retry.
	KindRateLimited Kind = "rate_limited"
	// KindAuthenticationFailed means the credential was rejected. Retrying
	// with the same key cannot help.
	KindAuthenticationFailed Kind = "authentication_failed"
	// KindNetwork covers transport failures and upstream 5xx responses.
	KindNetwork Kind = "network"
	// KindMalformedResponse means the upstream answered 2xx with a body we
	// could not interpret.
	KindMalformedResponse Kind = "malformed_response"
)

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may clear on retry. Rejected
// credentials stay rejected; everything else is transient.
func (e *Error) Retryable() bool {
	return e.Kind != KindAuthenticationFailed
}

// NewError builds a classified error for a source.
func NewError(kind Kind, source string, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}
