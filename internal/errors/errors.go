// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel kinds wrapped by the constructors below so callers can use errors.Is.
var (
	ErrNotFound      = stderrors.New("resource not found")
	ErrAlreadyExists = stderrors.New("resource already exists")
	ErrInvalidInput  = stderrors.New("invalid input")
	ErrInternal      = stderrors.New("internal error")
)

// NotFound creates a formatted "not found" error
func NotFound(resource, id string) error {
	return fmt.Errorf("%w: %s with ID %s", ErrNotFound, resource, id)
}

// AlreadyExists creates a formatted "already exists" error
func AlreadyExists(resource, id string) error {
	return fmt.Errorf("%w: %s with ID %s", ErrAlreadyExists, resource, id)
}

// InvalidInput creates a formatted "invalid input" error
func InvalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// Internal creates a formatted "internal error" error
func Internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
