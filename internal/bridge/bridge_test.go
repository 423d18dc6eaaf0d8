// ABOUTME: Tests for the invoke facade: fast unknown-tool rejection and delegation.
// ABOUTME: Verifies no frame is sent for tools missing from the registry.

package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingChannel records sends and parrots back success responses.
type countingChannel struct {
	mu     sync.Mutex
	sends  int
	frames chan protocol.Frame
	once   sync.Once
}

func newCountingChannel() *countingChannel {
	return &countingChannel{frames: make(chan protocol.Frame, 16)}
}

func (c *countingChannel) Send(f protocol.Frame) error {
	c.mu.Lock()
	c.sends++
	c.mu.Unlock()
	if f.Type == protocol.FrameCall {
		c.frames <- protocol.OKFrame(f.RequestID, json.RawMessage(`{"echo":true}`))
	}
	return nil
}

func (c *countingChannel) Frames() <-chan protocol.Frame { return c.frames }

func (c *countingChannel) Close() error {
	c.once.Do(func() { close(c.frames) })
	return nil
}

func (c *countingChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func newTestBridge(t *testing.T) (*Bridge, *countingChannel) {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.RegisterDefinition(registry.Definition{
		Name:        "list_articles",
		Description: "List published articles",
	}))

	ch := newCountingChannel()
	sess := session.New(ch, testLogger(), session.Options{})
	ch.frames <- protocol.ReadyFrame("s1", []string{"list_articles"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sess.WaitReady(ctx))
	t.Cleanup(sess.Close)

	return New(reg, sess, testLogger()), ch
}

func TestInvokeDelegatesToSession(t *testing.T) {
	b, _ := newTestBridge(t)

	res := b.Invoke(context.Background(), "list_articles", map[string]any{"page": 1})
	require.True(t, res.OK())
	assert.JSONEq(t, `{"echo":true}`, string(res.Payload))
}

func TestInvokeUnknownToolSendsNothing(t *testing.T) {
	b, ch := newTestBridge(t)
	before := ch.sendCount()

	res := b.Invoke(context.Background(), "nonexistentTool", map[string]any{})
	require.False(t, res.OK())
	assert.Equal(t, protocol.FailUnknownTool, res.Failure.Kind)
	assert.Equal(t, before, ch.sendCount(), "unknown tool must not reach the wire")
}

func TestInvokeProducesExactlyOneResult(t *testing.T) {
	b, _ := newTestBridge(t)

	var wg sync.WaitGroup
	results := make(chan protocol.ToolResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- b.Invoke(context.Background(), "list_articles", nil)
		}()
	}
	wg.Wait()
	close(results)

	count := 0
	for res := range results {
		count++
		assert.True(t, res.OK())
	}
	assert.Equal(t, 10, count)
}

func TestToolsListsRegistry(t *testing.T) {
	b, _ := newTestBridge(t)

	defs := b.Tools()
	require.Len(t, defs, 1)
	assert.Equal(t, "list_articles", defs[0].Name)
}
