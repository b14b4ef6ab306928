package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// AuthError means the bearer credential was rejected. It is fatal: the batch
// driver aborts the whole run rather than retrying other repositories with a
// bad token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError means a repository or resource does not exist or is not
// accessible with the current credential.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %v", e.Resource, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// RateLimitedError means the API quota was exhausted and retries did not
// recover.
type RateLimitedError struct {
	ResetAt time.Time
	Err     error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s: %v", e.ResetAt.Format(time.RFC3339), e.Err)
}
func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransientError wraps a retryable failure (429/5xx or a network error) that
// survived all retry attempts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedInputError means an input could not be interpreted: an invalid
// 'owner/name' token, or an API payload missing a required field.
type MalformedInputError struct {
	Input  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Input, e.Reason)
}

// StorageError means the blob store was unreachable or rejected an operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var e *AuthError
	return stderrors.As(err, &e)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return stderrors.As(err, &e)
}
