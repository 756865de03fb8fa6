package domain

import "errors"

var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateEmail indicates a signup with an already registered email.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateURL indicates a uniqueUrl collision on form creation.
	ErrDuplicateURL = errors.New("duplicate unique url")
)
