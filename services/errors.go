package services

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's failure taxonomy. Handlers translate
// them to HTTP statuses; services never import net/http.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
)

// StorageError wraps a physical I/O failure. It is always retryable by the
// reaper and surfaces as a 5xx for interactive requests.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
