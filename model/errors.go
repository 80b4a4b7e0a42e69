package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input the caller has to correct. Nothing has been written.
	ErrValidation = errors.New("invalid order")
	// ErrNotFound marks an operation on a customer, order or ingredient that no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrStore marks a failure inside a transaction. The transaction was rolled back.
	ErrStore = errors.New("could not complete operation")
	// ErrStoreUnavailable marks a store that could not be reached or locked in time.
	ErrStoreUnavailable = fmt.Errorf("%w: store unavailable", ErrStore)
)

// Validationf wraps ErrValidation with a user-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with the missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStore reports store failures, including ErrStoreUnavailable.
func IsStore(err error) bool { return errors.Is(err, ErrStore) }

func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
