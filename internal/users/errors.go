package users

import "errors"

var (
	// ErrNotFound is returned when a user, patient or psychologist does not exist.
	ErrNotFound = errors.New("users: not found")

	// ErrInactive is returned when the referenced account has been deactivated.
	ErrInactive = errors.New("users: inactive")

	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")

	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("users: all fields are required")

	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = errors.New("users: passwords do not match")

	// ErrPasswordTooShort is returned for passwords under MinPasswordLength.
	ErrPasswordTooShort = errors.New("users: password must have at least 6 characters")

	// ErrInvalidCredentials is returned when login fails.
	ErrInvalidCredentials = errors.New("users: invalid email or password")

	// ErrInvalidRole is returned for unknown role tags.
	ErrInvalidRole = errors.New("users: invalid role")
)
