// ABOUTME: Tests for the skill router: recipes, retries, publish guards,
// ABOUTME: and short-circuiting replies.

package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeetVekariya/devto-agent/internal/dedupe"
	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/store"
)

// fakeInvoker scripts tool results per tool name and records calls.
type fakeInvoker struct {
	mu      sync.Mutex
	results map[string][]protocol.ToolResult
	calls   []string
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{results: make(map[string][]protocol.ToolResult)}
}

func (f *fakeInvoker) on(tool string, results ...protocol.ToolResult) {
	f.results[tool] = append(f.results[tool], results...)
}

func (f *fakeInvoker) Invoke(ctx context.Context, tool string, args map[string]any) protocol.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tool)

	queue := f.results[tool]
	if len(queue) == 0 {
		return protocol.Fail("", protocol.FailUnknownTool, fmt.Sprintf("no scripted result for %s", tool))
	}
	result := queue[0]
	f.results[tool] = queue[1:]
	return result
}

func (f *fakeInvoker) callCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == tool {
			n++
		}
	}
	return n
}

func ok(payload string) protocol.ToolResult {
	return protocol.Success("req", json.RawMessage(payload))
}

func failKind(kind protocol.FailureKind) protocol.ToolResult {
	return protocol.Fail("req", kind, string(kind))
}

func newTestRouter(t *testing.T, inv Invoker) *Router {
	t.Helper()
	guard := dedupe.NewGuard(time.Minute, 100)
	t.Cleanup(guard.Close)
	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return NewRouter(inv, guard, ledger, slog.Default())
}

func TestListSkills(t *testing.T) {
	r := newTestRouter(t, newFakeInvoker())

	descriptors := r.List()
	ids := make([]string, len(descriptors))
	mutating := map[string]bool{}
	for i, d := range descriptors {
		ids[i] = d.ID
		mutating[d.ID] = d.Mutating
	}
	assert.Equal(t, []string{
		"articles_by_tags", "browse_articles", "my_profile",
		"publish_article", "read_article", "reading_list",
	}, ids)
	assert.True(t, mutating["publish_article"])
	assert.False(t, mutating["browse_articles"])
}

func TestExecuteUnknownSkill(t *testing.T) {
	r := newTestRouter(t, newFakeInvoker())

	_, err := r.Execute(context.Background(), "no_such_skill", nil)
	assert.ErrorIs(t, err, ErrUnknownSkill)
}

func TestBrowseArticles(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("list_articles", ok(`{"articles":[{"id":1,"title":"Hello Go","user":{"username":"gopher"},"tag_list":["go"]}],"count":1}`))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "browse_articles", nil)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Contains(t, reply.Text, "Hello Go")
	assert.Contains(t, reply.Text, "@gopher")
}

func TestArticlesByTagsRequiresTags(t *testing.T) {
	r := newTestRouter(t, newFakeInvoker())

	reply, err := r.Execute(context.Background(), "articles_by_tags", map[string]any{})
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, protocol.FailProtocolViolation, reply.Failure.Kind)
}

func TestReadArticleComposesBothSteps(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("get_article", ok(`{"id":7,"title":"Deep Dive","body_markdown":"# Intro\n\nText.","user":{"name":"Ann","username":"ann"}}`))
	inv.on("get_article_comments", ok(`{"comments":[{"id_code":"c1","body_html":"<p>nice</p>"}],"count":1}`))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "read_article", map[string]any{"id": 7})
	require.NoError(t, err)
	require.True(t, reply.OK())
	assert.Len(t, reply.Steps, 2)
	assert.Contains(t, reply.Text, "Deep Dive")
	assert.Contains(t, reply.Text, "<h1>Intro</h1>")
	assert.Contains(t, reply.Text, "1 comment(s)")
}

func TestReadArticleShortCircuitsOnFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("get_article", failKind(protocol.FailRemoteError))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "read_article", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, "get_article", reply.Failed)
	assert.Len(t, reply.Steps, 1)
	// The comments step is never attempted.
	assert.Equal(t, 0, inv.callCount("get_article_comments"))
}

func TestReadRetriesRateLimit(t *testing.T) {
	inv := newFakeInvoker()
	rateLimited := protocol.ToolResult{
		RequestID: "req",
		Failure: &protocol.Failure{
			Kind:       protocol.FailRateLimited,
			Message:    "slow down",
			RetryAfter: 10 * time.Millisecond,
		},
	}
	inv.on("list_articles", rateLimited, ok(`{"articles":[],"count":0}`))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "browse_articles", nil)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, 2, inv.callCount("list_articles"))
}

func TestReadRateLimitHonorsRetryHint(t *testing.T) {
	inv := newFakeInvoker()
	rateLimited := protocol.ToolResult{
		RequestID: "req",
		Failure: &protocol.Failure{
			Kind:       protocol.FailRateLimited,
			Message:    "slow down",
			RetryAfter: 80 * time.Millisecond,
		},
	}
	inv.on("list_articles", rateLimited, ok(`{"articles":[],"count":0}`))
	r := newTestRouter(t, inv)

	start := time.Now()
	reply, err := r.Execute(context.Background(), "browse_articles", nil)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, 2, inv.callCount("list_articles"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestReadRateLimitWaitAbortsOnCancel(t *testing.T) {
	inv := newFakeInvoker()
	rateLimited := protocol.ToolResult{
		RequestID: "req",
		Failure: &protocol.Failure{
			Kind:       protocol.FailRateLimited,
			Message:    "slow down",
			RetryAfter: 10 * time.Second,
		},
	}
	inv.on("list_articles", rateLimited, ok(`{"articles":[],"count":0}`))
	r := newTestRouter(t, inv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	reply, err := r.Execute(ctx, "browse_articles", nil)
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, protocol.FailRateLimited, reply.Failure.Kind)
	assert.Equal(t, 1, inv.callCount("list_articles"))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReadDoesNotRetryRemoteError(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("list_articles", failKind(protocol.FailRemoteError))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "browse_articles", nil)
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, 1, inv.callCount("list_articles"))
}

func TestPublishArticleSuccess(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("create_article", ok(`{"id":99,"title":"My Post","url":"https://dev.to/u/my-post"}`))
	r := newTestRouter(t, inv)

	args := map[string]any{"title": "My Post", "body_markdown": "content"}
	reply, err := r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	require.True(t, reply.OK())
	assert.Contains(t, reply.Text, "https://dev.to/u/my-post")

	attempts, err := r.ledger.ListAttempts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, store.OutcomePublished, attempts[0].Outcome)
	assert.Equal(t, 99, attempts[0].ArticleID)

	// Repeating the same title is refused without another tool call.
	reply, err = r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, protocol.FailAmbiguousOutcome, reply.Failure.Kind)
	assert.Equal(t, 1, inv.callCount("create_article"))
}

func TestPublishTimeoutIsAmbiguousAndNeverRetried(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("create_article", failKind(protocol.FailTimeout))
	r := newTestRouter(t, inv)

	args := map[string]any{"title": "Maybe Published", "body_markdown": "content"}
	reply, err := r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, protocol.FailAmbiguousOutcome, reply.Failure.Kind)
	assert.Equal(t, 1, inv.callCount("create_article"))

	attempts, err := r.ledger.ListAttempts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, store.OutcomeAmbiguous, attempts[0].Outcome)

	// The title is now guarded: a repeat is refused, not reissued.
	reply, err = r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, 1, inv.callCount("create_article"))
}

func TestPublishRemoteFailureAllowsRetry(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("create_article",
		failKind(protocol.FailRemoteError),
		ok(`{"id":5,"title":"Fixed","url":"https://dev.to/u/fixed"}`))
	r := newTestRouter(t, inv)

	args := map[string]any{"title": "Fixed", "body_markdown": "content"}
	reply, err := r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	assert.False(t, reply.OK())

	// A definite rejection does not poison the title.
	reply, err = r.Execute(context.Background(), "publish_article", args)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, 2, inv.callCount("create_article"))
}

func TestPublishRequiresTitleAndBody(t *testing.T) {
	inv := newFakeInvoker()
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "publish_article", map[string]any{"title": "No Body"})
	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, 0, inv.callCount("create_article"))
}

func TestMyProfile(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("get_current_user", ok(`{"id":1,"username":"gopher","name":"Go Pher","summary":"writes Go"}`))
	inv.on("get_user_articles", ok(`{"articles":[{"id":3,"title":"Mine","user":{"username":"gopher"}}],"count":1}`))
	r := newTestRouter(t, inv)

	reply, err := r.Execute(context.Background(), "my_profile", nil)
	require.NoError(t, err)
	require.True(t, reply.OK())
	assert.Contains(t, reply.Text, "Go Pher (@gopher)")
	assert.Contains(t, reply.Text, "Mine")
}
