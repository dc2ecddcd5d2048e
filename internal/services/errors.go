package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")

	// ErrExportsDisabled is returned by TaskService.Export when no object
	// store was configured.
	ErrExportsDisabled = errors.New("task exports are not configured")
)

// InputError describes a rejected request payload. Its message is safe to
// return to clients.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalidInput(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}
