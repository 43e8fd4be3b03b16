package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes. Anything the user can fix before the operation starts (flags,
// config, a missing database) is a command error; failures of the operation
// itself are operation failures.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // migration failed, backup corrupt, restore failed
	ExitCommandError = 2 // bad flags, missing config, database not found
)

// ExitError carries the process exit code alongside the message. Commands
// return it from RunE; main translates it via GetExitCode.
type ExitError struct {
	Code    int
	Message string
	Err     error // underlying cause, optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and context to an existing error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command emits in --format json.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error half of the envelope.
type CLIError struct {
	Code    string      `json:"code"`              // "E001".."E008", see loader.go
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // payload gathered before the failure
}

// OutputFormatter writes command results in the configured format. Commands
// render their own text output and reach for the formatter in JSON mode, so
// the text fallbacks here are deliberately plain.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// Success emits a result envelope.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error emits an error envelope. Details may carry a partial result, such as
// the migration report of a failed run.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}
