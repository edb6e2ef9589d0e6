package services

import (
	"errors"
	"fmt"
)

// Error kinds returned by the state machines. Callers test with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrForbidden     = errors.New("forbidden")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidOption = errors.New("invalid option")
	ErrAlreadyVoted  = errors.New("already voted")
	ErrExpired       = errors.New("expired")
	ErrTransient     = errors.New("transient failure")
)

// transient wraps a store or transport failure so it matches ErrTransient
// while keeping the cause.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
