// ABOUTME: In-flight call table correlating response frames to waiting callers.
// ABOUTME: Every insert, resolve, remove, and bulk-fail is mutually exclusive.

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
)

// ErrDuplicateRequestID indicates a request ID already present in the
// in-flight table. Request IDs are unique within a session's lifetime.
var ErrDuplicateRequestID = errors.New("duplicate request id")

// pendingCall is one outstanding invocation. The result channel is a
// single-resolution slot: buffered one deep and written exactly once, by
// whichever path removed the entry from the table.
type pendingCall struct {
	call      protocol.ToolCall
	result    chan protocol.ToolResult
	cancelled bool
}

// correlator owns the in-flight table for one session.
type correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	logger  *slog.Logger
}

func newCorrelator(logger *slog.Logger) *correlator {
	return &correlator{
		pending: make(map[string]*pendingCall),
		logger:  logger,
	}
}

// add inserts a pending call, rejecting reused request IDs.
func (c *correlator) add(pc *pendingCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := pc.call.RequestID
	if _, exists := c.pending[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequestID, id)
	}
	c.pending[id] = pc
	return nil
}

// take removes and returns the pending call for a request ID, or nil if no
// such call is in flight (late responses land here and are discarded by
// the caller).
func (c *correlator) take(requestID string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	pc, ok := c.pending[requestID]
	if !ok {
		return nil
	}
	delete(c.pending, requestID)
	return pc
}

// takeLocal removes the entry for a locally resolved call (timeout or
// cancellation). Returns nil if a response frame already claimed it, in
// which case the caller must read the real result instead.
func (c *correlator) takeLocal(requestID string, cancelled bool) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	pc, ok := c.pending[requestID]
	if !ok {
		return nil
	}
	pc.cancelled = cancelled
	delete(c.pending, requestID)
	return pc
}

// drainAll empties the table and returns every still-pending call, for
// bulk force-failure when the session closes.
func (c *correlator) drainAll() []*pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := make([]*pendingCall, 0, len(c.pending))
	for id, pc := range c.pending {
		calls = append(calls, pc)
		delete(c.pending, id)
	}
	return calls
}

// count returns the number of in-flight calls.
func (c *correlator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
