package models

import "errors"

// Storage-level sentinel errors. Uniqueness and validity violations are
// reported with these so callers can turn them into boolean-failure results
// instead of crashing.
var (
	ErrInvalidPerson     = errors.New("person needs an email or a psid")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicatePSID     = errors.New("psid already registered")
	ErrDuplicateGoogleID = errors.New("google form id already registered")
	ErrDuplicatePoleName = errors.New("pole name already registered")
	ErrDuplicateUser     = errors.New("user email already registered")
)
