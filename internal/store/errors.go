package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a notification or watch entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change is not allowed,
	// such as re-marking a Sent notification.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageUnavailable marks failures of the database itself rather
	// than of a single statement. A pass that sees it must abort.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// unavailableError wraps a driver error so that it matches both
// ErrStorageUnavailable and the original cause.
type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, ErrStorageUnavailable, e.err)
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.err}
}

// IsUnavailable reports whether err (or any error in its chain) marks the
// store as unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// classify wraps err as unavailable when it describes the database rather
// than the statement, and otherwise annotates it with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
		return err
	}
	if unavailable(err) {
		return &unavailableError{op: op, err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY,
			sqlite3.SQLITE_LOCKED,
			sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_FULL,
			sqlite3.SQLITE_READONLY,
			sqlite3.SQLITE_NOTADB,
			sqlite3.SQLITE_CORRUPT:
			return true
		}
	}
	// database/sql does not export its closed-pool error.
	return strings.Contains(err.Error(), "database is closed")
}
