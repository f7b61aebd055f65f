package config

import (
	"errors"
	"fmt"
)

var ErrNoTokens = errors.New("server.tokens: at least one access token is required")

// FieldError names the config key a problem was found at.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErrorf(path, format string, args ...any) error {
	return &FieldError{Path: path, Err: fmt.Errorf(format, args...)}
}
