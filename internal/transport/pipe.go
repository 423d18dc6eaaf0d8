// ABOUTME: Line-delimited frame transport over a reader/writer pair.
// ABOUTME: Used for subprocess stdio on the agent side and stdin/stdout on the server side.

package transport

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
)

// maxFrameSize bounds a single line-delimited frame. Article bodies ride
// inside frames, so this is generous.
const maxFrameSize = 4 << 20

// Pipe is the stdio transport variant: one frame per line on a strictly
// ordered byte stream. Concurrent logical calls are still supported because
// every frame carries its requestId; wire order carries no meaning.
type Pipe struct {
	writeMu sync.Mutex
	w       io.Writer

	frames  chan protocol.Frame
	logger  *slog.Logger
	closers []io.Closer

	closeMu sync.Mutex
	closed  bool
}

// NewPipe wraps a reader/writer pair as a Channel and starts the read loop.
// Any closers are closed (in order) when the pipe is closed.
func NewPipe(r io.Reader, w io.Writer, logger *slog.Logger, closers ...io.Closer) *Pipe {
	p := &Pipe{
		w:       w,
		frames:  make(chan protocol.Frame, 16),
		logger:  logger.With("transport", "pipe"),
		closers: closers,
	}
	go p.readLoop(r)
	return p
}

// Send writes one frame as a single line. Writes are serialized so
// concurrent senders never interleave partial frames.
func (p *Pipe) Send(f protocol.Frame) error {
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Frames returns the inbound frame sequence. The channel closes when the
// underlying reader reaches EOF or fails.
func (p *Pipe) Frames() <-chan protocol.Frame {
	return p.frames
}

// Close marks the pipe unwritable and closes the underlying endpoints,
// which unblocks the read loop. Safe to call more than once.
func (p *Pipe) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	p.closeMu.Unlock()

	var firstErr error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readLoop assembles full lines into frames until the reader ends.
// Partial reads are buffered by the scanner; a line that fails to decode
// is logged and discarded without stopping the loop.
func (p *Pipe) readLoop(r io.Reader) {
	defer close(p.frames)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		f, err := protocol.Decode(line)
		if err != nil {
			p.logger.Warn("discarding malformed frame", "error", err)
			continue
		}
		p.frames <- f
	}

	if err := scanner.Err(); err != nil {
		p.logger.Debug("pipe read ended", "error", err)
	}
}
