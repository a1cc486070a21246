package storage

import (
	"errors"
	"fmt"
)

// Storage operations, used as StorageError.Op and as metric labels.
const (
	OpSchema = "schema"
	OpList   = "list"
	OpGet    = "get"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpDates  = "dates"
	OpPing   = "ping"
)

// ErrBillNotFound is returned by Get when no row has the requested id.
var ErrBillNotFound = errors.New("bill not found")

// StorageError is the single failure kind of the bill store. It wraps the
// driver error together with the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
