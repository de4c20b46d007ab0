package session

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when a join carries a blank display name
	ErrEmptyName = errors.New("name must not be empty")

	// ErrUnknownMode is returned when switchMode names a mode other than work or break
	ErrUnknownMode = errors.New("unknown timer mode")

	// ErrEngineStopped is returned for operations submitted after Run has returned
	ErrEngineStopped = errors.New("engine stopped")
)

// ValidationError reports a rejected operation. The engine leaves state untouched
// and emits no broadcast when it returns one.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
