// ABOUTME: Tests for the channel-serving loop: handshake, dispatch,
// ABOUTME: error mapping, duplicate ids, and drain behavior.

package toolserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeetVekariya/devto-agent/internal/devto"
	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// memChannel is an in-memory transport.Channel for driving ServeChannel.
type memChannel struct {
	sent    chan protocol.Frame
	inbound chan protocol.Frame

	mu     sync.Mutex
	closed bool
}

func newMemChannel() *memChannel {
	return &memChannel{
		sent:    make(chan protocol.Frame, 32),
		inbound: make(chan protocol.Frame, 32),
	}
}

func (c *memChannel) Send(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrChannelClosed
	}
	c.sent <- f
	return nil
}

func (c *memChannel) Frames() <-chan protocol.Frame { return c.inbound }

func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *memChannel) recv(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case f := <-c.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Frame{}
	}
}

func echoHandler(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func newTestServer(t *testing.T, setup func(*registry.Registry)) *Server {
	t.Helper()
	reg := registry.New()
	if setup != nil {
		setup(reg)
	}
	return New(reg, slog.Default())
}

func TestServeChannelSendsReadyFirst(t *testing.T) {
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "echo"}, echoHandler))
	})
	ch := newMemChannel()

	done := make(chan error, 1)
	go func() { done <- srv.ServeChannel(context.Background(), ch, "sess-1") }()

	ready := ch.recv(t)
	assert.Equal(t, protocol.FrameReady, ready.Type)
	assert.Equal(t, "sess-1", ready.SessionID)
	assert.Equal(t, []string{"echo"}, ready.Tools)

	ch.Close()
	require.NoError(t, <-done)
}

func TestServeChannelDispatchesCall(t *testing.T) {
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "echo"}, echoHandler))
	})
	ch := newMemChannel()
	go srv.ServeChannel(context.Background(), ch, "sess-1")
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-1", "echo", map[string]any{"x": float64(1)})

	result := ch.recv(t)
	assert.Equal(t, protocol.FrameResult, result.Type)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, protocol.StatusOK, result.Status)
	assert.JSONEq(t, `{"x":1}`, string(result.Payload))

	ch.Close()
}

func TestServeChannelUnknownTool(t *testing.T) {
	srv := newTestServer(t, nil)
	ch := newMemChannel()
	go srv.ServeChannel(context.Background(), ch, "sess-1")
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-1", "no_such_tool", nil)

	result := ch.recv(t)
	assert.Equal(t, protocol.StatusError, result.Status)
	assert.Equal(t, protocol.CodeUnknownTool, result.Code)

	ch.Close()
}

func TestServeChannelConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "slow"},
			func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				<-release
				return json.RawMessage(`"slow done"`), nil
			}))
		require.NoError(t, reg.Register(registry.Definition{Name: "fast"}, echoHandler))
	})
	ch := newMemChannel()
	go srv.ServeChannel(context.Background(), ch, "sess-1")
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-slow", "slow", nil)
	ch.inbound <- protocol.CallFrame("req-fast", "fast", map[string]any{"ok": true})

	// The fast call completes while the slow one is still blocked.
	first := ch.recv(t)
	assert.Equal(t, "req-fast", first.RequestID)

	close(release)
	second := ch.recv(t)
	assert.Equal(t, "req-slow", second.RequestID)

	ch.Close()
}

func TestServeChannelRejectsDuplicateInflightID(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "slow"},
			func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				<-release
				return json.RawMessage(`{}`), nil
			}))
	})
	ch := newMemChannel()
	go srv.ServeChannel(context.Background(), ch, "sess-1")
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-1", "slow", nil)
	ch.inbound <- protocol.CallFrame("req-1", "slow", nil)

	dup := ch.recv(t)
	assert.Equal(t, protocol.StatusError, dup.Status)
	assert.Equal(t, protocol.CodeDuplicateID, dup.Code)

	close(release)
	done := ch.recv(t)
	assert.Equal(t, protocol.StatusOK, done.Status)

	ch.Close()
}

func TestServeChannelDrainOnBye(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "slow"},
			func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				<-release
				return json.RawMessage(`"finished"`), nil
			}))
	})
	ch := newMemChannel()
	done := make(chan error, 1)
	go func() { done <- srv.ServeChannel(context.Background(), ch, "sess-1") }()
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-1", "slow", nil)
	time.Sleep(20 * time.Millisecond)
	ch.inbound <- protocol.ByeFrame("client shutdown")

	// New calls after bye are rejected while the in-flight one continues.
	ch.inbound <- protocol.CallFrame("req-2", "slow", nil)
	rejected := ch.recv(t)
	assert.Equal(t, "req-2", rejected.RequestID)
	assert.Equal(t, protocol.CodeSessionDraining, rejected.Code)

	close(release)
	result := ch.recv(t)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, protocol.StatusOK, result.Status)

	bye := ch.recv(t)
	assert.Equal(t, protocol.FrameBye, bye.Type)

	require.NoError(t, <-done)
}

func TestErrorFrameMapping(t *testing.T) {
	srv := newTestServer(t, func(reg *registry.Registry) {
		require.NoError(t, reg.Register(registry.Definition{Name: "rate_limited"},
			func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				return nil, &devto.RateLimitedError{RetryAfter: 45 * time.Second}
			}))
		require.NoError(t, reg.Register(registry.Definition{Name: "remote_fail"},
			func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				return nil, &devto.RemoteError{HTTPStatus: 422, Message: "title too long"}
			}))
	})
	ch := newMemChannel()
	go srv.ServeChannel(context.Background(), ch, "sess-1")
	ch.recv(t) // ready

	ch.inbound <- protocol.CallFrame("req-rate", "rate_limited", nil)
	rate := ch.recv(t)
	assert.Equal(t, protocol.CodeRateLimited, rate.Code)
	assert.Equal(t, 429, rate.HTTPStatus)
	assert.Equal(t, 45, rate.RetryAfterSeconds)

	ch.inbound <- protocol.CallFrame("req-remote", "remote_fail", nil)
	remote := ch.recv(t)
	assert.Equal(t, protocol.CodeRemoteError, remote.Code)
	assert.Equal(t, 422, remote.HTTPStatus)
	assert.Equal(t, "title too long", remote.Message)

	ch.Close()
}
