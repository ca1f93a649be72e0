package domain

import "errors"

var (
	// ErrValidation signals a malformed query shape or invalid parameter.
	ErrValidation = errors.New("invalid query")
	// ErrPreconditionFailed signals a missing prerequisite, such as an
	// absent full-text index.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConfiguration signals that no embedding function is bound to a
	// vector column that needs one.
	ErrConfiguration = errors.New("configuration error")
	// ErrTypeMismatch signals a value of the wrong logical type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUpstream signals a storage, index, or provider failure.
	ErrUpstream = errors.New("upstream failure")
	// ErrRateLimited signals a transient quota failure from an embedding
	// provider. Retried internally; surfaces as ErrUpstream once the
	// retry budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
)
