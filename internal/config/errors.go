package config

import (
	"errors"
	"fmt"
)

var errNotPositive = errors.New("must be positive")

// FieldError reports a configuration key that could not be parsed
type FieldError struct {
	Key string
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
