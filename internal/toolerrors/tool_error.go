// Package toolerrors provides the structured error type returned to agents
// when a tool invocation fails (spec §4.3 step 6, §7 "Tool-execution").
// ToolError preserves a message, a Kind the orchestrator's escalation ladder
// and the AgentRunner can switch on, and a causal chain, while still
// round-tripping as a plain string across the LLM chat-with-tools boundary.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies why a tool invocation failed, so callers above the
// Invoker (the AgentRunner's loop, the orchestrator's recovery ladder) can
// branch on failure category instead of pattern-matching message text.
type Kind int

const (
	// Unknown is the zero value: an unclassified or wrapped third-party error.
	Unknown Kind = iota
	// UnknownTool means the requested tool name has no registered Spec.
	UnknownTool
	// InvalidArguments means the call failed JSON-Schema parameter validation.
	InvalidArguments
	// PathResolution means a path argument escaped the project root or
	// otherwise failed to resolve.
	PathResolution
	// LockDenied means the FileCoordinator refused the lock immediately
	// (wait_timeout of zero, incompatible holder).
	LockDenied
	// LockTimedOut means the FileCoordinator's wait queue never granted the
	// lock within wait_timeout.
	LockTimedOut
	// LoopDetected means the LoopDetector's hard_cap was exceeded for this
	// (agent, path) pair; the session must terminate rather than retry.
	LoopDetected
)

// ToolError is a structured tool failure. It implements error and Unwrap so
// errors.Is/errors.As keep working after a tool result has been rendered to
// text and parsed back (e.g. when an agent-as-tool hop serializes the error).
type ToolError struct {
	Message string
	Kind    Kind
	Cause   *ToolError
}

// New constructs an unclassified ToolError from a message with no
// underlying cause.
func New(message string) *ToolError {
	return NewKind(Unknown, message)
}

// NewKind constructs a classified ToolError from a message with no
// underlying cause.
func NewKind(kind Kind, message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message, Kind: kind}
}

// NewWithCause constructs a ToolError that wraps an existing error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts any error into a ToolError chain, reusing an existing
// chain if err already carries one.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf builds an unclassified ToolError from a format string.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the causal chain to errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether this error (or any error in its causal chain) carries
// kind, letting callers write errors.Is(err, toolerrors.KindError(LockDenied)).
func (e *ToolError) Is(target error) bool {
	other, ok := target.(*ToolError)
	if !ok || e == nil {
		return false
	}
	return other.Kind != Unknown && e.Kind == other.Kind
}

// KindError builds a sentinel carrying only kind, for use with errors.Is.
func KindError(kind Kind) *ToolError {
	return &ToolError{Kind: kind}
}
