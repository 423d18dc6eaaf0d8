// Package transport implements the frame channels connecting the agent to
// a tool-serving process.
//
// # Variants
//
// Two variants share the Channel contract:
//
//   - Pipe: line-delimited JSON over a byte stream. Wraps a subprocess's
//     stdin/stdout on the agent side (see StartSubprocess) and the process's
//     own stdio on the server side. The wire is strictly ordered but calls
//     are still multiplexed by requestId.
//   - Stream: server-sent events inbound plus an HTTP POST channel
//     outbound. Message-oriented, so concurrent in-flight frames come for
//     free.
//
// # Guarantees
//
// Both variants buffer partial input until a full frame is assembled, never
// silently drop a frame, and serialize writes so concurrent senders cannot
// interleave. The inbound sequence ends (channel close, not error) when the
// connection does; the session layer treats that as disconnection.
package transport
