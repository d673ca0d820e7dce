// This file defines sentinel error types and the mapping from internal
// errors to the structured payloads surfaced to callers.
package tools

import (
	"errors"
	"fmt"

	"github.com/parleygate/parley/internal/messaging"
	"github.com/parleygate/parley/internal/session"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. This is a capability mismatch, not a
// transient failure, and callers should not retry.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ArgError reports a missing or malformed tool argument.
type ArgError struct {
	Name string
}

// Error implements the error interface.
func (e *ArgError) Error() string {
	return fmt.Sprintf("%s is required", e.Name)
}

// Error codes surfaced to callers.
const (
	CodeInvalidSession  = "invalid_session"
	CodeInvalidArgument = "invalid_argument"
	CodeUnknownTool     = "unknown_tool"
	CodeRemoteError     = "remote_error"
	CodeInternalError   = "internal_error"
)

// ErrorInfo is the structured error payload surfaced to callers over
// both the MCP and REST surfaces.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// RemoteStatus carries the remote service's HTTP status for
	// remote_error payloads.
	RemoteStatus int `json:"remoteStatus,omitempty"`
}

// MapError converts an internal error into its caller-facing payload.
func MapError(err error) ErrorInfo {
	var unavailable *ErrToolUnavailable
	if errors.As(err, &unavailable) {
		return ErrorInfo{Code: CodeUnknownTool, Message: unavailable.Error()}
	}

	var argErr *ArgError
	if errors.As(err, &argErr) {
		return ErrorInfo{Code: CodeInvalidArgument, Message: argErr.Error()}
	}

	if errors.Is(err, session.ErrNotFound) {
		return ErrorInfo{
			Code:    CodeInvalidSession,
			Message: "unknown or expired session; start a new one with chat_start_session",
		}
	}

	var apiErr *messaging.APIError
	if errors.As(err, &apiErr) {
		return ErrorInfo{
			Code:         CodeRemoteError,
			Message:      apiErr.Error(),
			RemoteStatus: apiErr.StatusCode,
		}
	}

	return ErrorInfo{Code: CodeInternalError, Message: err.Error()}
}
