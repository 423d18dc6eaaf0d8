// ABOUTME: Wire frame types exchanged between the agent and the tool-serving process.
// ABOUTME: Frames are JSON objects, line-delimited on pipes and event-delimited on streams.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame type discriminators. Every frame on the wire carries exactly one.
const (
	// FrameReady is the first frame a tool server sends on a new session.
	// It carries the session ID and the advertised tool names.
	FrameReady = "ready"

	// FrameCall is a tool invocation request from the agent side.
	FrameCall = "call"

	// FrameResult is the correlated response to a FrameCall.
	FrameResult = "result"

	// FrameBye signals closing intent. The receiver should drain and
	// stop issuing new calls; outstanding calls may still complete.
	FrameBye = "bye"
)

// Result status values carried by FrameResult.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes carried by error results so the agent side can map them
// back onto typed failures.
const (
	CodeUnknownTool     = "unknown_tool"
	CodeSessionDraining = "session_draining"
	CodeRemoteError     = "remote_error"
	CodeRateLimited     = "rate_limited"
	CodeDuplicateID     = "duplicate_request_id"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

// ErrMalformedFrame indicates a frame that could not be decoded or is
// missing its type discriminator. The receive loop logs and discards
// these; they never terminate the loop.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the envelope for every protocol message. Fields are populated
// according to Type; unused fields are omitted on the wire.
type Frame struct {
	Type string `json:"type"`

	// Call and result correlation.
	RequestID string `json:"requestId,omitempty"`

	// Call fields.
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// Result fields.
	Status     string          `json:"status,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
	HTTPStatus int             `json:"httpStatus,omitempty"`
	// RetryAfterSeconds is the rate-limit hint from the platform, if any.
	RetryAfterSeconds int `json:"retryAfter,omitempty"`

	// Ready fields.
	SessionID string   `json:"sessionId,omitempty"`
	Tools     []string `json:"tools,omitempty"`

	// Bye fields.
	Reason string `json:"reason,omitempty"`
}

// Encode serializes a frame to a single JSON line without the trailing
// newline. Transports add their own delimiters.
func Encode(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}

// Decode parses a single frame from raw bytes and validates the parts
// the correlation contract depends on.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	switch f.Type {
	case FrameCall:
		if f.RequestID == "" || f.Tool == "" {
			return Frame{}, fmt.Errorf("%w: call missing requestId or tool", ErrMalformedFrame)
		}
	case FrameResult:
		if f.RequestID == "" {
			return Frame{}, fmt.Errorf("%w: result missing requestId", ErrMalformedFrame)
		}
		if f.Status != StatusOK && f.Status != StatusError {
			return Frame{}, fmt.Errorf("%w: result status %q", ErrMalformedFrame, f.Status)
		}
	}
	return f, nil
}

// CallFrame builds a request frame for a tool call.
func CallFrame(requestID, tool string, args map[string]any) Frame {
	return Frame{
		Type:      FrameCall,
		RequestID: requestID,
		Tool:      tool,
		Args:      args,
	}
}

// OKFrame builds a success result frame.
func OKFrame(requestID string, payload json.RawMessage) Frame {
	return Frame{
		Type:      FrameResult,
		RequestID: requestID,
		Status:    StatusOK,
		Payload:   payload,
	}
}

// ErrorFrame builds an error result frame with a machine-readable code.
func ErrorFrame(requestID, code, message string) Frame {
	return Frame{
		Type:      FrameResult,
		RequestID: requestID,
		Status:    StatusError,
		Code:      code,
		Message:   message,
	}
}

// ReadyFrame builds the handshake frame advertising the session and tools.
func ReadyFrame(sessionID string, tools []string) Frame {
	return Frame{
		Type:      FrameReady,
		SessionID: sessionID,
		Tools:     tools,
	}
}

// ByeFrame builds a closing-intent frame.
func ByeFrame(reason string) Frame {
	return Frame{Type: FrameBye, Reason: reason}
}
