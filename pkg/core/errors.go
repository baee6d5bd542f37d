package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("record not found")

	// ErrUnsupported is returned when a backend cannot run an operation or clause.
	ErrUnsupported = errors.New("operation not supported by adapter")
)

// NotFoundError is returned when a record is absent from storage.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s#%s not found", e.Table, e.ID)
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvariantError describes a programmer error. It is raised as a panic
// because continuing would corrupt the cache or call ordering.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Message
}

// Invariant panics with an InvariantError when cond is false.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{Message: fmt.Sprintf(format, args...)})
	}
}
