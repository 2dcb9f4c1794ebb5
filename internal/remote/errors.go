package remote

import (
	"errors"
	"fmt"
)

// Code classifies a remote API failure. Everything the scheduler's retry
// and reconciliation logic branches on is here; anything else is
// CodeUnclassified and propagates as fatal.
type Code int

const (
	CodeUnclassified Code = iota
	// CodeRateLimited: the per-window call budget is exhausted.
	CodeRateLimited
	// CodeNotFound: the target account does not exist.
	CodeNotFound
	// CodeSuspended: the target account is suspended.
	CodeSuspended
	// CodeAlreadyUndone: e.g. "not muting specified user".
	CodeAlreadyUndone
	// CodePageGone: the target's page no longer exists (account deleted).
	CodePageGone
)

func (c Code) String() string {
	switch c {
	case CodeRateLimited:
		return "rate_limited"
	case CodeNotFound:
		return "not_found"
	case CodeSuspended:
		return "suspended"
	case CodeAlreadyUndone:
		return "already_undone"
	case CodePageGone:
		return "page_gone"
	default:
		return "unclassified"
	}
}

// APIError is a classified failure from the remote API.
type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api: %s: %s", e.Code, e.Message)
}

// CodeOf extracts the classification from an error, CodeUnclassified for
// anything that is not an APIError.
func CodeOf(err error) Code {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeUnclassified
}
