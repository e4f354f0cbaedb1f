package model

import "errors"

var (
	// Credential verification errors. NotFound and WrongPassword stay
	// distinct on purpose; the sign-in UI surfaces different messages.
	ErrUserNotFound      = errors.New("no user found with this email")
	ErrWrongPassword     = errors.New("invalid password")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Session / access errors
	ErrInvalidToken = errors.New("invalid token")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Remote todo API errors
	ErrTodoNotFound = errors.New("todo not found")
	ErrUpstream     = errors.New("upstream todo API failure")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
