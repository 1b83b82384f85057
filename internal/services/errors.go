package services

import (
	"errors"
	"fmt"
)

// ErrInvalidWindow is returned for an unknown window kind or a bad limit
var ErrInvalidWindow = errors.New("invalid window")

// ValidationError rejects an ingest batch. Index is -1 when the batch as a
// whole is at fault.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error in record %d: %s", e.Index, e.Reason)
}
