package service

import (
	"errors"
	"fmt"
)

var (
	// ErrPermitNotFound is returned when no row matches a lookup key.
	ErrPermitNotFound = errors.New("permit not found")
	// ErrDuplicateConfirmationID is returned when the generated code already exists.
	ErrDuplicateConfirmationID = errors.New("confirmation id already exists")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionMissing     = errors.New("no session")
	ErrSessionInvalid     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for missing or malformed applicant input.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UpstreamError wraps an object store or database failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RenderError wraps a certificate generation failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render certificate: %v", e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
