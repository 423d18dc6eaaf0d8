// ABOUTME: Session lifecycle and the submit/dispatch path over one transport channel.
// ABOUTME: State machine: Connecting -> Ready -> Draining -> Closed; Closed is terminal.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// State is the session lifecycle state.
type State int

const (
	// StateConnecting means the transport is up but the handshake (ready
	// frame) has not arrived yet.
	StateConnecting State = iota
	// StateReady accepts new calls.
	StateReady
	// StateDraining rejects new calls while outstanding ones finish, up
	// to the grace deadline.
	StateDraining
	// StateClosed is terminal; reconnection means a new Session.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultCallTimeout applies when a submit does not specify its own.
const DefaultCallTimeout = 30 * time.Second

// DefaultDrainGrace bounds how long draining waits for outstanding calls.
const DefaultDrainGrace = 10 * time.Second

// Options tune a session's timeouts.
type Options struct {
	DefaultTimeout time.Duration
	DrainGrace     time.Duration
}

// Session owns one transport channel and the in-flight table for one
// connected caller. Sessions never share state with each other.
type Session struct {
	channel transport.Channel
	logger  *slog.Logger
	calls   *correlator

	defaultTimeout time.Duration
	drainGrace     time.Duration

	mu    sync.Mutex
	id    string
	state State
	tools []string

	readyCh  chan struct{}
	closedCh chan struct{}
}

// New wraps a connected channel in a Session and starts its receive loop.
// The session starts in Connecting and becomes Ready when the tool server's
// ready frame arrives.
func New(channel transport.Channel, logger *slog.Logger, opts Options) *Session {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultCallTimeout
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = DefaultDrainGrace
	}

	id := uuid.New().String()
	logger = logger.With("session_id", id)

	s := &Session{
		channel:        channel,
		logger:         logger,
		calls:          newCorrelator(logger),
		defaultTimeout: opts.DefaultTimeout,
		drainGrace:     opts.DrainGrace,
		id:             id,
		state:          StateConnecting,
		readyCh:        make(chan struct{}),
		closedCh:       make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

// ID returns the session identifier. The server-assigned ID from the ready
// frame replaces the provisional one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tools returns the tool names the server advertised at handshake.
func (s *Session) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tools...)
}

// Pending returns the number of in-flight calls, for tests and monitoring.
func (s *Session) Pending() int {
	return s.calls.count()
}

// WaitReady blocks until the handshake completes, the session closes, or
// ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-s.closedCh:
		return fmt.Errorf("session closed before handshake")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit issues one tool call and suspends the caller until a correlated
// response arrives, the timeout elapses, the caller cancels, or the
// session closes. Exactly one ToolResult is returned per call.
func (s *Session) Submit(ctx context.Context, tool string, args map[string]any, timeout time.Duration) protocol.ToolResult {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	if failure := s.gate(ctx); failure != nil {
		return protocol.ToolResult{Failure: failure, CompletedAt: time.Now()}
	}

	requestID := uuid.New().String()
	pc := &pendingCall{
		call: protocol.ToolCall{
			RequestID: requestID,
			Tool:      tool,
			Args:      args,
			IssuedAt:  time.Now(),
		},
		result: make(chan protocol.ToolResult, 1),
	}

	if err := s.calls.add(pc); err != nil {
		return protocol.Fail(requestID, protocol.FailProtocolViolation, err.Error())
	}

	// The session may have closed between gate and add, in which case
	// drainAll already ran and will never see this entry. Reclaim it here;
	// if the close path got it first, its result is already written.
	select {
	case <-s.closedCh:
		if s.calls.take(requestID) == nil {
			return <-pc.result
		}
		return protocol.Fail(requestID, protocol.FailConnectionLost, "session is closed")
	default:
	}

	if err := s.channel.Send(protocol.CallFrame(requestID, tool, args)); err != nil {
		s.calls.take(requestID)
		return protocol.Fail(requestID, protocol.FailConnectionLost, err.Error())
	}

	s.logger.Debug("call submitted",
		"request_id", requestID,
		"tool", tool,
		"timeout", timeout,
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pc.result:
		return res
	case <-timer.C:
		return s.resolveLocal(pc, protocol.FailTimeout,
			fmt.Sprintf("no response for %s within %s", tool, timeout), false)
	case <-ctx.Done():
		return s.resolveLocal(pc, protocol.FailCancelled, ctx.Err().Error(), true)
	}
}

// gate admits a submit only when the session is (or becomes) Ready.
func (s *Session) gate(ctx context.Context) *protocol.Failure {
	for {
		s.mu.Lock()
		state := s.state
		s.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateDraining:
			return &protocol.Failure{Kind: protocol.FailSessionDraining, Message: "session is draining"}
		case StateClosed:
			return &protocol.Failure{Kind: protocol.FailConnectionLost, Message: "session is closed"}
		}

		select {
		case <-s.readyCh:
		case <-s.closedCh:
		case <-ctx.Done():
			return &protocol.Failure{Kind: protocol.FailCancelled, Message: ctx.Err().Error()}
		}
	}
}

// resolveLocal settles a call from the caller's side (timeout or
// cancellation). If a response frame won the race, its result is returned
// instead; either way the entry is gone from the table and a later frame
// for this ID is discarded as a late arrival.
func (s *Session) resolveLocal(pc *pendingCall, kind protocol.FailureKind, message string, cancelled bool) protocol.ToolResult {
	if taken := s.calls.takeLocal(pc.call.RequestID, cancelled); taken == nil {
		return <-pc.result
	}

	s.logger.Debug("call resolved locally",
		"request_id", pc.call.RequestID,
		"tool", pc.call.Tool,
		"kind", string(kind),
	)
	return protocol.Fail(pc.call.RequestID, kind, message)
}

// receiveLoop consumes inbound frames until the transport ends. Malformed
// or unexpected frames are logged and discarded; they never stop the loop.
func (s *Session) receiveLoop() {
	for f := range s.channel.Frames() {
		switch f.Type {
		case protocol.FrameReady:
			s.markReady(f)
		case protocol.FrameResult:
			s.dispatch(f)
		case protocol.FrameBye:
			s.logger.Info("remote signaled closing intent", "reason", f.Reason)
			go s.Drain()
		default:
			s.logger.Warn("discarding unexpected frame", "type", f.Type)
		}
	}
	s.close("transport ended")
}

// markReady completes the handshake. Duplicate ready frames are ignored.
func (s *Session) markReady(f protocol.Frame) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		s.logger.Warn("discarding ready frame outside handshake", "state", s.state.String())
		return
	}
	s.state = StateReady
	s.tools = f.Tools
	if f.SessionID != "" {
		s.id = f.SessionID
	}
	s.mu.Unlock()

	close(s.readyCh)
	s.logger.Info("session ready",
		"remote_session_id", f.SessionID,
		"tool_count", len(f.Tools),
	)
}

// dispatch routes a result frame to its waiting caller. A frame with no
// matching in-flight entry (late arrival after timeout, or a peer bug) is
// logged and dropped.
func (s *Session) dispatch(f protocol.Frame) {
	pc := s.calls.take(f.RequestID)
	if pc == nil {
		s.logger.Warn("discarding response for unknown request",
			"request_id", f.RequestID,
		)
		return
	}

	// Buffered one deep and only ever written by the path that removed
	// the entry, so this never blocks and never double-resolves.
	pc.result <- protocol.ResultFromFrame(f)
}

// Drain moves the session to Draining: new calls are rejected while
// outstanding ones finish, bounded by the grace deadline. The session then
// closes.
func (s *Session) Drain() {
	s.mu.Lock()
	if s.state != StateConnecting && s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	s.mu.Unlock()

	s.logger.Info("session draining",
		"outstanding", s.calls.count(),
		"grace", s.drainGrace,
	)

	// Best-effort closing intent to the peer; the transport may already
	// be gone.
	_ = s.channel.Send(protocol.ByeFrame("draining"))

	deadline := time.NewTimer(s.drainGrace)
	defer deadline.Stop()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for s.calls.count() > 0 {
		select {
		case <-ticker.C:
		case <-deadline.C:
			s.close("drain grace elapsed")
			return
		case <-s.closedCh:
			return
		}
	}
	s.close("drained")
}

// Close tears the session down immediately, force-failing outstanding
// calls with ConnectionLost.
func (s *Session) Close() {
	s.close("closed by caller")
}

func (s *Session) close(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()
	close(s.closedCh)

	abandoned := s.calls.drainAll()
	for _, pc := range abandoned {
		pc.result <- protocol.Fail(pc.call.RequestID, protocol.FailConnectionLost, reason)
	}

	_ = s.channel.Close()
	s.logger.Info("session closed",
		"reason", reason,
		"abandoned_calls", len(abandoned),
	)
}
