// ABOUTME: SQLite-backed ledger of publish attempts using modernc.org/sqlite.
// ABOUTME: Lets operators reconcile ambiguous outcomes instead of guessing.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values for a publish attempt.
const (
	// OutcomePending is recorded before the create call is issued.
	OutcomePending = "pending"
	// OutcomePublished means the platform confirmed the article.
	OutcomePublished = "published"
	// OutcomeFailed means the platform rejected the article.
	OutcomeFailed = "failed"
	// OutcomeAmbiguous means the call timed out or the connection dropped
	// after the request was sent: the article may or may not exist.
	OutcomeAmbiguous = "ambiguous"
)

// Attempt is one publish attempt and its eventual outcome.
type Attempt struct {
	ID         string
	RequestKey string
	SkillID    string
	Title      string
	Tags       []string
	Outcome    string
	ArticleID  int
	ArticleURL string
	Detail     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Ledger records publish attempts in SQLite. This is mutation bookkeeping,
// not conversation history: its purpose is that an ambiguous publish is
// never silently lost.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the ledger database at path. Parent directories
// are created as needed and WAL mode is enabled for concurrent readers.
func Open(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "ledger")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	logger.Info("publish ledger opened", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS publish_attempts (
			id TEXT PRIMARY KEY,
			request_key TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			title TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			article_id INTEGER,
			article_url TEXT,
			detail TEXT,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_publish_attempts_request_key
			ON publish_attempts(request_key);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordAttempt inserts a pending attempt before the create call goes out.
func (l *Ledger) RecordAttempt(ctx context.Context, a *Attempt) error {
	query := `
		INSERT INTO publish_attempts (id, request_key, skill_id, title, tags, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		a.ID,
		a.RequestKey,
		a.SkillID,
		a.Title,
		strings.Join(a.Tags, ","),
		OutcomePending,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording publish attempt: %w", err)
	}

	l.logger.Debug("publish attempt recorded",
		"attempt_id", a.ID,
		"skill_id", a.SkillID,
		"title", a.Title,
	)
	return nil
}

// MarkOutcome finalizes an attempt. ArticleID and URL may be zero when the
// outcome is failed or ambiguous.
func (l *Ledger) MarkOutcome(ctx context.Context, attemptID, outcome string, articleID int, articleURL, detail string) error {
	query := `
		UPDATE publish_attempts
		SET outcome = ?, article_id = ?, article_url = ?, detail = ?, resolved_at = ?
		WHERE id = ?
	`
	result, err := l.db.ExecContext(ctx, query,
		outcome,
		nullInt(articleID),
		nullString(articleURL),
		nullString(detail),
		time.Now().UTC().Format(time.RFC3339),
		attemptID,
	)
	if err != nil {
		return fmt.Errorf("marking publish outcome: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("marking publish outcome: attempt %s not found", attemptID)
	}

	l.logger.Info("publish outcome recorded",
		"attempt_id", attemptID,
		"outcome", outcome,
		"article_id", articleID,
	)
	return nil
}

// ListAttempts returns the most recent attempts, newest first.
func (l *Ledger) ListAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_key, skill_id, title, tags, outcome,
		       COALESCE(article_id, 0), COALESCE(article_url, ''), COALESCE(detail, ''),
		       created_at, resolved_at
		FROM publish_attempts
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing publish attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a          Attempt
			tags       string
			createdAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RequestKey, &a.SkillID, &a.Title, &tags, &a.Outcome,
			&a.ArticleID, &a.ArticleURL, &a.Detail, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning publish attempt: %w", err)
		}
		if tags != "" {
			a.Tags = strings.Split(tags, ",")
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			a.CreatedAt = t
		}
		if resolvedAt.Valid {
			if t, err := time.Parse(time.RFC3339, resolvedAt.String); err == nil {
				a.ResolvedAt = &t
			}
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// HasSucceeded reports whether any attempt with this request key already
// reached a published or ambiguous outcome. Complements the in-memory
// guard across process restarts.
func (l *Ledger) HasSucceeded(ctx context.Context, requestKey string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM publish_attempts
		WHERE request_key = ? AND outcome IN (?, ?)
	`
	var count int
	if err := l.db.QueryRowContext(ctx, query, requestKey, OutcomePublished, OutcomeAmbiguous).Scan(&count); err != nil {
		return false, fmt.Errorf("checking publish history: %w", err)
	}
	return count > 0, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
