package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrAlreadyVerified = errors.New("already verified")
	ErrRateLimited     = errors.New("rate limited")
	// ErrDelivery marks a failed or timed-out notification send. It is an
	// internal failure for the client but is logged separately from store errors.
	ErrDelivery = errors.New("delivery failed")

	// ErrUserNotFound narrows ErrNotFound to a missing account, as opposed
	// to a missing or consumed token.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)

// ValidationError carries a client-safe description of rejected input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }
