package harness

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, a subset that cannot be located, an unwritable report, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents one or more failed subsets (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// UsageError represents an invalid command line (exit code 1)
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *UsageError) Unwrap() error {
	return e.Err
}

// NewUsageError creates a new UsageError
func NewUsageError(err error) *UsageError {
	return &UsageError{Err: err}
}

// IsUsageError checks if the error is or wraps a UsageError
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return err != nil && errors.As(err, &usageErr)
}

// InterruptedError is returned when a signal cancelled the run (exit code 130)
type InterruptedError struct {
	Message string
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted: %s", e.Message)
}

// NewInterruptedError creates a new InterruptedError
func NewInterruptedError(message string) *InterruptedError {
	return &InterruptedError{Message: message}
}

// IsInterruptedError checks if the error is or wraps an InterruptedError
func IsInterruptedError(err error) bool {
	var interruptedErr *InterruptedError
	return err != nil && errors.As(err, &interruptedErr)
}
