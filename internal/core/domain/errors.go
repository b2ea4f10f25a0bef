package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrMissingAPIToken indicates the Readwise API token is not
	// configured. Fatal to the ingestion entry point; no network call
	// is attempted. Querying an already-populated index does not need
	// the token.
	ErrMissingAPIToken = errors.New("readwise API token not configured")

	// ErrRateLimited indicates the export API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreNotOpen indicates the vector store was used before Open.
	ErrStoreNotOpen = errors.New("vector store not open")
)

// SetupError reports a failure while constructing one of the query
// pipeline's expensive shared handles (embedding model, LLM client,
// vector store). It is fatal-but-retryable: the pipeline stays
// uninitialized so a later call may attempt setup again.
type SetupError struct {
	// Stage names the handle that failed to construct.
	Stage string

	// Err is the underlying construction failure.
	Err error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	return fmt.Sprintf("pipeline setup (%s): %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *SetupError) Unwrap() error {
	return e.Err
}
