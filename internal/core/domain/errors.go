package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

var (
	ErrValidationFailed = errors.New("upstream validation failed")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrDataInvalid      = errors.New("invalid data")
	ErrIO               = errors.New("i/o failure")
	ErrRunNotFound      = errors.New("transformation run not found")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context and
// remembers the file:line it was called from.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &locatedError{
		err:      fmt.Errorf("%s: %w: %w", operation, kind, err),
		location: callerLocation(2),
	}
}

type locatedError struct {
	err      error
	location string
}

func (e *locatedError) Error() string { return e.err.Error() }

func (e *locatedError) Unwrap() error { return e.err }

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError carries the upstream validation message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// StageError pins a failure to the pipeline step and source location that raised it.
type StageError struct {
	Step     string
	Location string
	Err      error
}

func (e *StageError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Step, e.Location, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError attaches the location recorded by the outermost WrapError in
// err. Errors that never went through WrapError get the caller's file:line.
func NewStageError(step string, err error) error {
	if err == nil {
		return nil
	}
	var located *locatedError
	loc := ""
	if errors.As(err, &located) {
		loc = located.location
	} else {
		loc = callerLocation(2)
	}
	return &StageError{Step: step, Location: loc, Err: err}
}
