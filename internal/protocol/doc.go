// Package protocol defines the wire frames and result types shared by the
// agent side and the tool-serving side of the invocation bridge.
//
// # Frames
//
// Every message on the wire is one Frame, a JSON object with a type
// discriminator:
//
//   - ready:  handshake, advertises session ID and tool names
//   - call:   {requestId, tool, args} request from the agent
//   - result: {requestId, status, payload|message} correlated response
//   - bye:    closing intent, triggers draining on the peer
//
// Transports choose their own delimiters (newline on pipes, SSE events on
// streams); Encode/Decode handle only the JSON body.
//
// # Results
//
// ToolResult is the single outcome of one call. Failures carry a
// FailureKind so callers can distinguish a timeout from a rate limit from
// a lost connection without string matching.
package protocol
