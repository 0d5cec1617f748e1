package domain

import (
	"errors"
	"fmt"
)

// Configuration error kinds. Every run-start rejection wraps one of these.
var (
	// ErrInvalidParameter is returned when a parameter value or combination is rejected.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidData is returned when the input frame is malformed.
	ErrInvalidData = errors.New("invalid data")
)

// ParamError identifies the offending parameter or column by name.
type ParamError struct {
	Kind   error  // ErrInvalidParameter or ErrInvalidData
	Param  string // parameter or column name, e.g. "sl_exit_in_bar"
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Param, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return e.Kind
}

func invalidParam(name, format string, args ...any) *ParamError {
	return &ParamError{Kind: ErrInvalidParameter, Param: name, Reason: fmt.Sprintf(format, args...)}
}

func invalidData(name, format string, args ...any) *ParamError {
	return &ParamError{Kind: ErrInvalidData, Param: name, Reason: fmt.Sprintf(format, args...)}
}
