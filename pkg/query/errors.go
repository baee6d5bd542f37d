package query

import "fmt"

// ValidationError is returned when clauses or identifiers are rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
