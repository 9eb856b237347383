// Package wheelerr defines the core's error taxonomy (spec.md §7),
// independent of any infrastructure concern. Every error raised by a pure
// domain function or an application-layer scheduler is a *WheelError so
// callers can branch on Code rather than string-matching messages.
package wheelerr

import (
	"errors"
	"fmt"
)

// Code identifies a well-known error category.
type Code string

const (
	// CodeFatalConfig signals a not-a-repo or not-initialized condition.
	// The CLI must exit with status 2 when it sees this code.
	CodeFatalConfig Code = "FATAL_CONFIG"

	// CodeBranchDiverged signals the base branch could not be fast-forwarded
	// under a strict pull policy.
	CodeBranchDiverged Code = "BRANCH_DIVERGED"

	// CodeTransient signals a recoverable external failure (fetch network,
	// PR poll, trajectory generation, learning consolidation). Callers log
	// and continue; they must not alter shutdown state or cooldown counters.
	CodeTransient Code = "TRANSIENT"

	// CodeAgentFailure signals an agent invocation that failed outright.
	CodeAgentFailure Code = "AGENT_FAILURE"

	// CodeScopeViolation signals a ticket touched files outside its allowed
	// paths. Not a hard error; the caller re-queues with a bounded retry.
	CodeScopeViolation Code = "SCOPE_VIOLATION"

	// CodeStuckStep signals trajectoryStuck found a step over its retry
	// budget or flaky.
	CodeStuckStep Code = "STUCK_STEP"

	// CodePersistence signals a best-effort write failed; in-memory state
	// remains authoritative for the rest of the session.
	CodePersistence Code = "PERSISTENCE"

	// CodeValidation signals a structural/semantic validation failure.
	CodeValidation Code = "VALIDATION"

	// CodeCycle signals a dependency cycle in a trajectory's step graph.
	CodeCycle Code = "CYCLE"

	// CodeNotFound signals a missing resource (step, trajectory, entry).
	CodeNotFound Code = "NOT_FOUND"

	// CodeInternal signals a bug, not an environment condition.
	CodeInternal Code = "INTERNAL"
)

// WheelError is a typed error enriched with contextual data.
type WheelError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// New constructs a WheelError.
func New(code Code, message string) *WheelError {
	return &WheelError{Code: code, Message: message}
}

// Wrap constructs a WheelError around an existing cause.
func Wrap(code Code, message string, cause error) *WheelError {
	return &WheelError{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *WheelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *WheelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is allows errors.Is comparisons against other WheelError values by code.
func (e *WheelError) Is(target error) bool {
	var other *WheelError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithContext returns a copy of the error with additional context merged in.
func (e *WheelError) WithContext(ctx map[string]interface{}) *WheelError {
	if e == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	return &WheelError{Code: e.Code, Message: e.Message, Cause: e.Cause, Context: merged}
}

// Recoverable reports whether this error's code is handled locally per
// spec.md §7 (everything except fatal-configuration and
// branch-divergence-under-strict-policy).
func (e *WheelError) Recoverable() bool {
	if e == nil {
		return true
	}
	switch e.Code {
	case CodeFatalConfig, CodeBranchDiverged:
		return false
	default:
		return true
	}
}
