// ABOUTME: Tests for the SQLite publish ledger.
// ABOUTME: Exercises attempt recording, outcome resolution, and history checks.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndResolveAttempt(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	attempt := &Attempt{
		ID:         "attempt-1",
		RequestKey: "publish:go generics deep dive",
		SkillID:    "publish_article",
		Title:      "Go Generics Deep Dive",
		Tags:       []string{"go", "generics"},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, l.RecordAttempt(ctx, attempt))

	attempts, err := l.ListAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomePending, attempts[0].Outcome)
	assert.Equal(t, []string{"go", "generics"}, attempts[0].Tags)
	assert.Nil(t, attempts[0].ResolvedAt)

	require.NoError(t, l.MarkOutcome(ctx, "attempt-1", OutcomePublished, 4217, "https://dev.to/u/go-generics", ""))

	attempts, err = l.ListAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomePublished, attempts[0].Outcome)
	assert.Equal(t, 4217, attempts[0].ArticleID)
	assert.Equal(t, "https://dev.to/u/go-generics", attempts[0].ArticleURL)
	assert.NotNil(t, attempts[0].ResolvedAt)
}

func TestMarkOutcomeUnknownAttempt(t *testing.T) {
	l := openTestLedger(t)

	err := l.MarkOutcome(context.Background(), "no-such-attempt", OutcomeFailed, 0, "", "boom")
	assert.Error(t, err)
}

func TestHasSucceeded(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordAttempt(ctx, &Attempt{
		ID:         "a1",
		RequestKey: "publish:first post",
		SkillID:    "publish_article",
		Title:      "First Post",
		CreatedAt:  time.Now(),
	}))

	// Pending attempts don't count as success.
	ok, err := l.HasSucceeded(ctx, "publish:first post")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.MarkOutcome(ctx, "a1", OutcomeAmbiguous, 0, "", "call timed out"))

	// Ambiguous counts: the article may exist, so a repeat is unsafe.
	ok, err = l.HasSucceeded(ctx, "publish:first post")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.HasSucceeded(ctx, "publish:other post")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedAttemptAllowsRetry(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordAttempt(ctx, &Attempt{
		ID:         "a1",
		RequestKey: "publish:rejected",
		SkillID:    "publish_article",
		Title:      "Rejected",
		CreatedAt:  time.Now(),
	}))
	require.NoError(t, l.MarkOutcome(ctx, "a1", OutcomeFailed, 0, "", "validation error"))

	ok, err := l.HasSucceeded(ctx, "publish:rejected")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAttemptsOrderAndLimit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, l.RecordAttempt(ctx, &Attempt{
			ID:         id,
			RequestKey: "publish:" + id,
			SkillID:    "publish_article",
			Title:      id,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	attempts, err := l.ListAttempts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "a3", attempts[0].ID)
	assert.Equal(t, "a2", attempts[1].ID)
}
