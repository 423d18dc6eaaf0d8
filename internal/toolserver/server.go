// ABOUTME: Serves tool calls over a protocol channel: ready handshake,
// ABOUTME: per-call dispatch goroutines, and drain handling on bye.

package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/HeetVekariya/devto-agent/internal/devto"
	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// Server executes registered tools in response to call frames. One Server
// can serve many channels concurrently; per-session state lives in
// ServeChannel.
type Server struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a Server backed by the given registry.
func New(reg *registry.Registry, logger *slog.Logger) *Server {
	return &Server{
		registry: reg,
		logger:   logger.With("component", "toolserver"),
	}
}

// ServeChannel runs one session over ch until the channel ends, the peer
// says bye, or ctx is cancelled. It sends the ready frame first, then
// dispatches each call on its own goroutine so slow tools never block the
// wire. The channel is closed before returning.
func (s *Server) ServeChannel(ctx context.Context, ch transport.Channel, sessionID string) error {
	logger := s.logger.With("session_id", sessionID)

	if err := ch.Send(protocol.ReadyFrame(sessionID, s.registry.Names())); err != nil {
		ch.Close()
		return err
	}
	logger.Info("session ready", "tools", s.registry.Len())

	var (
		mu       sync.Mutex
		inflight = make(map[string]struct{})
		wg       sync.WaitGroup
		draining bool
	)

	sendLocked := func(f protocol.Frame) {
		if err := ch.Send(f); err != nil && !errors.Is(err, transport.ErrChannelClosed) {
			logger.Warn("failed to send frame", "type", f.Type, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("session context cancelled, draining")
			wg.Wait()
			ch.Close()
			return ctx.Err()

		case f, ok := <-ch.Frames():
			if !ok {
				logger.Info("channel ended")
				wg.Wait()
				ch.Close()
				return nil
			}

			switch f.Type {
			case protocol.FrameCall:
				mu.Lock()
				if draining {
					mu.Unlock()
					sendLocked(protocol.ErrorFrame(f.RequestID, protocol.CodeSessionDraining, "session is draining"))
					continue
				}
				if _, busy := inflight[f.RequestID]; busy {
					mu.Unlock()
					logger.Warn("duplicate in-flight request id", "request_id", f.RequestID)
					sendLocked(protocol.ErrorFrame(f.RequestID, protocol.CodeDuplicateID, "request id already in flight"))
					continue
				}
				inflight[f.RequestID] = struct{}{}
				mu.Unlock()

				wg.Add(1)
				go func(call protocol.Frame) {
					defer wg.Done()
					result := s.execute(ctx, call)
					mu.Lock()
					delete(inflight, call.RequestID)
					mu.Unlock()
					sendLocked(result)
				}(f)

			case protocol.FrameBye:
				logger.Info("peer said bye, draining", "reason", f.Reason)
				mu.Lock()
				already := draining
				draining = true
				mu.Unlock()
				if already {
					continue
				}
				// Keep reading so late calls get a draining rejection;
				// close the channel once in-flight work completes.
				go func() {
					wg.Wait()
					sendLocked(protocol.ByeFrame("drained"))
					ch.Close()
				}()

			default:
				// Ready and result frames are not expected from the agent
				// side; log and keep the session alive.
				logger.Warn("unexpected frame type", "type", f.Type)
			}
		}
	}
}

// execute resolves and runs one tool call, mapping errors onto wire codes.
func (s *Server) execute(ctx context.Context, call protocol.Frame) protocol.Frame {
	entry, err := s.registry.Resolve(call.Tool)
	if err != nil {
		return protocol.ErrorFrame(call.RequestID, protocol.CodeUnknownTool, err.Error())
	}

	args, err := marshalArgs(call.Args)
	if err != nil {
		return protocol.ErrorFrame(call.RequestID, protocol.CodeBadRequest, err.Error())
	}

	payload, err := entry.Handler(ctx, args)
	if err != nil {
		s.logger.Warn("tool call failed",
			"tool", call.Tool,
			"request_id", call.RequestID,
			"error", err,
		)
		return errorFrameFor(call.RequestID, err)
	}

	return protocol.OKFrame(call.RequestID, payload)
}

func marshalArgs(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("invalid call args: %w", err)
	}
	return data, nil
}

// errorFrameFor maps handler errors onto protocol error codes so the agent
// side can reconstruct typed failures.
func errorFrameFor(requestID string, err error) protocol.Frame {
	var rateErr *devto.RateLimitedError
	if errors.As(err, &rateErr) {
		f := protocol.ErrorFrame(requestID, protocol.CodeRateLimited, err.Error())
		f.HTTPStatus = 429
		f.RetryAfterSeconds = int(rateErr.RetryAfter.Seconds())
		return f
	}

	var remoteErr *devto.RemoteError
	if errors.As(err, &remoteErr) {
		f := protocol.ErrorFrame(requestID, protocol.CodeRemoteError, remoteErr.Message)
		f.HTTPStatus = remoteErr.HTTPStatus
		return f
	}

	return protocol.ErrorFrame(requestID, protocol.CodeInternal, err.Error())
}
