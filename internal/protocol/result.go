// ABOUTME: ToolCall and ToolResult types plus the failure taxonomy for the bridge.
// ABOUTME: Exactly one ToolResult is produced per ToolCall, success or failure.

package protocol

import (
	"encoding/json"
	"time"
)

// FailureKind classifies why a tool call did not succeed.
type FailureKind string

const (
	// FailUnknownTool means the tool name is not in the registry. The
	// bridge fails these fast, before any frame is sent.
	FailUnknownTool FailureKind = "unknown_tool"

	// FailSessionDraining means the session is shutting down and rejects
	// new calls.
	FailSessionDraining FailureKind = "session_draining"

	// FailTimeout means no matching response arrived within the deadline.
	FailTimeout FailureKind = "timeout"

	// FailCancelled means the caller cancelled the invocation locally.
	FailCancelled FailureKind = "cancelled"

	// FailConnectionLost means the transport ended while the call was
	// outstanding.
	FailConnectionLost FailureKind = "connection_lost"

	// FailAmbiguousOutcome means a mutating call timed out after the
	// request frame was sent: the remote side may or may not have
	// performed the mutation. Never retried automatically.
	FailAmbiguousOutcome FailureKind = "ambiguous_outcome"

	// FailRemoteError means the content platform returned a non-2xx
	// response; HTTPStatus carries the status code.
	FailRemoteError FailureKind = "remote_error"

	// FailRateLimited means the platform returned 429; RetryAfter carries
	// the server's hint.
	FailRateLimited FailureKind = "rate_limited"

	// FailProtocolViolation means the remote sent a malformed or
	// out-of-contract frame for this call.
	FailProtocolViolation FailureKind = "protocol_violation"
)

// ToolCall is an immutable record of one issued tool invocation.
type ToolCall struct {
	RequestID string
	Tool      string
	Args      map[string]any
	IssuedAt  time.Time
}

// Failure describes the error side of a ToolResult.
type Failure struct {
	Kind       FailureKind
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
}

// ToolResult is the single outcome of a ToolCall. Failure is nil on
// success, in which case Payload holds the tool's JSON output.
type ToolResult struct {
	RequestID   string
	Payload     json.RawMessage
	Failure     *Failure
	CompletedAt time.Time
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool {
	return r.Failure == nil
}

// FailureKind returns the failure classification, or "" on success.
func (r ToolResult) FailureKind() FailureKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

// Success builds a successful ToolResult.
func Success(requestID string, payload json.RawMessage) ToolResult {
	return ToolResult{
		RequestID:   requestID,
		Payload:     payload,
		CompletedAt: time.Now(),
	}
}

// Fail builds a failed ToolResult.
func Fail(requestID string, kind FailureKind, message string) ToolResult {
	return ToolResult{
		RequestID:   requestID,
		Failure:     &Failure{Kind: kind, Message: message},
		CompletedAt: time.Now(),
	}
}

// ResultFromFrame maps a received result frame onto a ToolResult,
// translating the wire error codes back into typed failure kinds.
func ResultFromFrame(f Frame) ToolResult {
	if f.Status == StatusOK {
		return Success(f.RequestID, f.Payload)
	}

	failure := &Failure{
		Message:    f.Message,
		HTTPStatus: f.HTTPStatus,
		RetryAfter: time.Duration(f.RetryAfterSeconds) * time.Second,
	}
	switch f.Code {
	case CodeUnknownTool:
		failure.Kind = FailUnknownTool
	case CodeSessionDraining:
		failure.Kind = FailSessionDraining
	case CodeRateLimited:
		failure.Kind = FailRateLimited
	case CodeRemoteError:
		failure.Kind = FailRemoteError
	case CodeDuplicateID, CodeBadRequest:
		failure.Kind = FailProtocolViolation
	default:
		failure.Kind = FailRemoteError
	}
	return ToolResult{
		RequestID:   f.RequestID,
		Failure:     failure,
		CompletedAt: time.Now(),
	}
}
