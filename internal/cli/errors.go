package cli

import (
	"errors"
	"fmt"
)

// UsageError reports invalid arguments
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ExitError carries the process exit code of a finished comparison.
// Err is nil when the outcome was already reported to the user.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to a process exit code: 0 when the inputs
// are identical, 1 when they differ, 2 on failure or misuse
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 2
}

// Reported tells whether err has already been shown to the user
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Err == nil
}
