package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"orderdesk/model"
)

// StoreError annotates a driver error with the failing operation. It matches
// model.ErrStore, and model.ErrStoreUnavailable when the store could not be
// locked or reached.
type StoreError struct {
	Op          string
	Err         error
	unavailable bool
}

func (e *StoreError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	switch target {
	case model.ErrStore:
		return true
	case model.ErrStoreUnavailable:
		return e.unavailable
	}
	return false
}

// Unavailable reports whether the lock wait or the file access failed.
func (e *StoreError) Unavailable() bool { return e.unavailable }

// WrapError classifies err. Errors that already carry a model kind and
// context cancellations pass through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if model.IsValidation(err) || model.IsNotFound(err) || model.IsStore(err) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}

	se := &StoreError{Op: op, Err: err}
	var sqliteErr sqlite3.Error
	switch {
	case errors.As(err, &sqliteErr):
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
			se.unavailable = true
		}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		se.unavailable = true
	}
	return se
}

// IsConstraint reports a UNIQUE/CHECK/FOREIGN KEY violation.
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
