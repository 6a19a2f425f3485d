package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPost        = errors.New("invalid post")
	ErrInvalidSignup      = errors.New("invalid signup")
	ErrInvalidPage        = errors.New("invalid page")
)
