// ABOUTME: Channel abstraction for bidirectional frame transports.
// ABOUTME: Implemented by the pipe (stdio) and stream (SSE) variants.

package transport

import (
	"errors"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
)

// ErrChannelClosed indicates a send on a channel that is no longer writable.
var ErrChannelClosed = errors.New("transport: channel closed")

// Channel is one bidirectional frame transport between the agent side and
// a tool-serving process.
//
// Send must be safe for concurrent use; implementations serialize writes so
// frames never interleave. Frames returns the inbound sequence: the channel
// it returns is closed when the underlying connection ends, which the owner
// must treat as disconnection rather than an error. Malformed inbound data
// is logged and discarded inside the implementation; it never terminates
// the sequence.
type Channel interface {
	Send(f protocol.Frame) error
	Frames() <-chan protocol.Frame
	Close() error
}
