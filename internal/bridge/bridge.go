// ABOUTME: Public entry point for issuing tool calls from the agent side.
// ABOUTME: Validates names against the registry, then delegates to the session.

package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/session"
)

// Bridge is the facade the agent side calls. It owns nothing mutable
// itself: the registry is read-only and the session owns its own table.
type Bridge struct {
	registry *registry.Registry
	session  *session.Session
	logger   *slog.Logger
}

// New builds a bridge over a session and a tool registry.
func New(reg *registry.Registry, sess *session.Session, logger *slog.Logger) *Bridge {
	return &Bridge{
		registry: reg,
		session:  sess,
		logger:   logger.With("component", "bridge"),
	}
}

// Invoke issues one tool call with the default timeout.
func (b *Bridge) Invoke(ctx context.Context, tool string, args map[string]any) protocol.ToolResult {
	return b.InvokeWithTimeout(ctx, tool, args, 0)
}

// InvokeWithTimeout issues one tool call. Unknown tool names fail fast
// before any frame is sent. The bridge never retries: retry policy belongs
// to the caller, which knows whether the operation is idempotent.
func (b *Bridge) InvokeWithTimeout(ctx context.Context, tool string, args map[string]any, timeout time.Duration) protocol.ToolResult {
	if _, err := b.registry.Resolve(tool); err != nil {
		b.logger.Debug("rejecting unknown tool", "tool", tool)
		return protocol.ToolResult{
			Failure: &protocol.Failure{
				Kind:    protocol.FailUnknownTool,
				Message: err.Error(),
			},
			CompletedAt: time.Now(),
		}
	}

	res := b.session.Submit(ctx, tool, args, timeout)
	if !res.OK() {
		b.logger.Debug("invoke failed",
			"tool", tool,
			"kind", string(res.Failure.Kind),
			"message", res.Failure.Message,
		)
	}
	return res
}

// Tools returns the definitions the bridge validates against.
func (b *Bridge) Tools() []registry.Definition {
	return b.registry.Definitions()
}

// Session exposes the underlying session for lifecycle control.
func (b *Bridge) Session() *session.Session {
	return b.session
}
