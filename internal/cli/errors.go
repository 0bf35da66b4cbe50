// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes shared by all commands.
//
// Handlers always return errors; main decides how to display them and
// which exit code to use.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/localtalk/internal/config"
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/orchestrator"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitUnavailable indicates the engine or model cannot be used
	ExitUnavailable = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user cancelled the command
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "pull", "config")
	Action  string // Action being performed (e.g., "set", "download")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Example: example,
	}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError displays an error in a consistent format. In JSON mode the
// error is a JSONResponse on stdout.
func DisplayError(err error, command string, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(err, command)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// DisplayErrorJSON outputs an error as a JSON envelope with its details.
func DisplayErrorJSON(err error, command string) {
	resp := NewJSONErrorResponse(command, err)

	details := map[string]interface{}{"exit_code": GetExitCode(err)}
	var cmdErr *CommandError
	var valErr *ValidationError
	switch {
	case errors.As(err, &valErr):
		details["error_type"] = "validation_error"
		details["field"] = valErr.Field
		details["value"] = valErr.Value
		details["reason"] = valErr.Reason
	case errors.As(err, &cmdErr):
		details["error_type"] = "command_error"
		details["action"] = cmdErr.Action
		details["reason"] = cmdErr.Reason
	default:
		details["error_type"] = "generic_error"
	}
	resp.Data = details

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

// HandleErrorAndExit displays an error and exits with GetExitCode(err).
func HandleErrorAndExit(err error, command string, jsonMode bool) {
	if err == nil {
		return
	}
	DisplayError(err, command, jsonMode)
	os.Exit(GetExitCode(err))
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}

	var configErrs config.ValidateErrors
	var configErr config.ValidationError
	if errors.As(err, &configErrs) || errors.As(err, &configErr) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, gateway.ErrEngineUnavailable):
		return ExitNetworkError
	case errors.Is(err, gateway.ErrDownloadRequired),
		errors.Is(err, orchestrator.ErrUnavailable):
		return ExitUnavailable
	}

	return ExitGeneralError
}
