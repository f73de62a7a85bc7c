package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Pipeline Errors.

	// ErrRunInProgress indicates another run holds the dataset's lock.
	// Overlapping runs must not interleave their swaps.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrBatchIncomplete indicates the staged count does not match the
	// source-reported total. Promotion is refused; the destination is
	// untouched.
	ErrBatchIncomplete = errors.New("staging batch incomplete")

	// ErrNoBatch indicates promotion was attempted with no staged
	// batch present.
	ErrNoBatch = errors.New("no staged batch")

	// Source Errors.

	// ErrAuthRequired indicates the source demands a credential but
	// none is configured.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthInvalid indicates the source rejected the credential.
	// Never retried.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrCredentialUnresolved indicates an env: credential reference
	// names an unset variable.
	ErrCredentialUnresolved = errors.New("credential reference unresolved")
)
