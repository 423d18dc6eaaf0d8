// ABOUTME: Routes skill requests to tool-call recipes over the bridge.
// ABOUTME: Read skills retry on transient failures; publishing never does.

package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/HeetVekariya/devto-agent/internal/dedupe"
	"github.com/HeetVekariya/devto-agent/internal/devto"
	"github.com/HeetVekariya/devto-agent/internal/markdown"
	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/store"
)

// ErrUnknownSkill is returned when no skill matches the requested id.
var ErrUnknownSkill = fmt.Errorf("unknown skill")

// maxReadRetries bounds retries of read-only tool calls on rate limits
// and timeouts.
const maxReadRetries = 3

type recipe struct {
	descriptor Descriptor
	run        func(ctx context.Context, r *Router, args map[string]any) *Reply
}

// Router executes skills against an Invoker. Mutating skills are guarded
// by the dedupe window and recorded in the publish ledger.
type Router struct {
	invoker Invoker
	guard   *dedupe.Guard
	ledger  *store.Ledger
	logger  *slog.Logger

	recipes map[string]recipe
}

// NewRouter creates a Router with the built-in skills. The ledger may be
// nil, in which case publish attempts are only guarded in memory.
func NewRouter(invoker Invoker, guard *dedupe.Guard, ledger *store.Ledger, logger *slog.Logger) *Router {
	r := &Router{
		invoker: invoker,
		guard:   guard,
		ledger:  ledger,
		logger:  logger.With("component", "skills"),
		recipes: make(map[string]recipe),
	}
	r.registerBuiltins()
	return r
}

func (r *Router) register(re recipe) {
	r.recipes[re.descriptor.ID] = re
}

// List returns descriptors for every known skill, sorted by id.
func (r *Router) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.recipes))
	for _, re := range r.recipes {
		out = append(out, re.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Execute runs the named skill. Tool-level failures are reported inside
// the Reply; the error return is reserved for unknown skills and bad
// arguments.
func (r *Router) Execute(ctx context.Context, skillID string, args map[string]any) (*Reply, error) {
	re, ok := r.recipes[skillID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSkill, skillID)
	}

	r.logger.Info("executing skill", "skill_id", skillID)
	reply := re.run(ctx, r, args)
	reply.SkillID = skillID

	if !reply.OK() {
		r.logger.Warn("skill failed",
			"skill_id", skillID,
			"failed_step", reply.Failed,
			"kind", reply.Failure.Kind,
		)
	}
	return reply, nil
}

// invokeRead performs a read-only tool call, retrying rate limits and
// timeouts with exponential backoff. All other failures are permanent.
func (r *Router) invokeRead(ctx context.Context, tool string, args map[string]any) protocol.ToolResult {
	var result protocol.ToolResult

	op := func() error {
		result = r.invoker.Invoke(ctx, tool, args)
		if result.OK() {
			return nil
		}
		switch result.FailureKind() {
		case protocol.FailRateLimited:
			// Honor the platform's retry hint before handing control back
			// to the exponential policy.
			if hint := result.Failure.RetryAfter; hint > 0 {
				select {
				case <-time.After(hint):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return fmt.Errorf("rate limited")
		case protocol.FailTimeout:
			return fmt.Errorf("timed out")
		default:
			return backoff.Permanent(fmt.Errorf("%s", result.Failure.Message))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxReadRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Warn("read call exhausted retries", "tool", tool, "error", err)
	}
	return result
}

func (r *Router) registerBuiltins() {
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "browse_articles",
			Description: "Browse recent articles on the platform",
		},
		run: runBrowseArticles,
	})
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "articles_by_tags",
			Description: "Find articles matching a set of tags",
		},
		run: runArticlesByTags,
	})
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "read_article",
			Description: "Read one article in full, with its comments",
		},
		run: runReadArticle,
	})
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "publish_article",
			Description: "Publish a new article to the platform",
			Mutating:    true,
		},
		run: runPublishArticle,
	})
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "my_profile",
			Description: "Show the authenticated user's profile and articles",
		},
		run: runMyProfile,
	})
	r.register(recipe{
		descriptor: Descriptor{
			ID:          "reading_list",
			Description: "Show the authenticated user's reading list",
		},
		run: runReadingList,
	})
}

type articlePage struct {
	Articles []devto.Article `json:"articles"`
	Count    int             `json:"count"`
}

func runBrowseArticles(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	result := r.invokeRead(ctx, "list_articles", map[string]any{
		"page":     intArg(args, "page", 1),
		"per_page": intArg(args, "per_page", 10),
	})
	if !reply.addStep("list_articles", result) {
		return reply
	}

	var page articlePage
	if err := json.Unmarshal(result.Payload, &page); err != nil {
		return replyBadPayload(reply, "list_articles", err)
	}
	reply.Text = formatArticleList("Recent articles", page.Articles)
	return reply
}

func runArticlesByTags(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	tags := stringSliceArg(args, "tags")
	if len(tags) == 0 {
		reply.Failed = "articles_by_tags"
		reply.Failure = &protocol.Failure{
			Kind:    protocol.FailProtocolViolation,
			Message: "tags argument is required",
		}
		return reply
	}

	result := r.invokeRead(ctx, "list_articles_by_tags", map[string]any{"tags": tags})
	if !reply.addStep("list_articles_by_tags", result) {
		return reply
	}

	var page articlePage
	if err := json.Unmarshal(result.Payload, &page); err != nil {
		return replyBadPayload(reply, "list_articles_by_tags", err)
	}
	reply.Text = formatArticleList("Articles tagged "+strings.Join(tags, ", "), page.Articles)
	return reply
}

func runReadArticle(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	id := intArg(args, "id", 0)
	if id <= 0 {
		reply.Failed = "read_article"
		reply.Failure = &protocol.Failure{
			Kind:    protocol.FailProtocolViolation,
			Message: "id argument is required",
		}
		return reply
	}

	articleResult := r.invokeRead(ctx, "get_article", map[string]any{"id": id})
	if !reply.addStep("get_article", articleResult) {
		return reply
	}
	var article devto.Article
	if err := json.Unmarshal(articleResult.Payload, &article); err != nil {
		return replyBadPayload(reply, "get_article", err)
	}

	commentsResult := r.invokeRead(ctx, "get_article_comments", map[string]any{"article_id": id})
	if !reply.addStep("get_article_comments", commentsResult) {
		return reply
	}
	var comments struct {
		Comments []devto.Comment `json:"comments"`
		Count    int             `json:"count"`
	}
	if err := json.Unmarshal(commentsResult.Payload, &comments); err != nil {
		return replyBadPayload(reply, "get_article_comments", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\nby %s (@%s)", article.Title, article.User.Name, article.User.Username)
	if len(article.TagList) > 0 {
		fmt.Fprintf(&sb, " · tags: %s", strings.Join(article.TagList, ", "))
	}
	sb.WriteString("\n\n")
	if html, err := markdown.Render(article.BodyMarkdown); err == nil {
		sb.WriteString(html)
	} else {
		sb.WriteString(article.BodyMarkdown)
	}
	fmt.Fprintf(&sb, "\n\n%d comment(s)\n", comments.Count)
	reply.Text = sb.String()
	return reply
}

func runPublishArticle(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	title := stringArg(args, "title")
	body := stringArg(args, "body_markdown")
	if title == "" || body == "" {
		reply.Failed = "publish_article"
		reply.Failure = &protocol.Failure{
			Kind:    protocol.FailProtocolViolation,
			Message: "title and body_markdown arguments are required",
		}
		return reply
	}

	key := "publish:" + strings.ToLower(strings.TrimSpace(title))
	if r.guard != nil && r.guard.Seen(key) {
		reply.Failed = "publish_article"
		reply.Failure = &protocol.Failure{
			Kind:    protocol.FailAmbiguousOutcome,
			Message: fmt.Sprintf("an article titled %q was already submitted recently; check the platform before republishing", title),
		}
		return reply
	}
	if r.ledger != nil {
		if done, err := r.ledger.HasSucceeded(ctx, key); err != nil {
			r.logger.Warn("ledger lookup failed", "error", err)
		} else if done {
			reply.Failed = "publish_article"
			reply.Failure = &protocol.Failure{
				Kind:    protocol.FailAmbiguousOutcome,
				Message: fmt.Sprintf("the ledger records an earlier publish of %q; reconcile it before republishing", title),
			}
			return reply
		}
	}

	attemptID := uuid.NewString()
	if r.ledger != nil {
		attempt := &store.Attempt{
			ID:         attemptID,
			RequestKey: key,
			SkillID:    "publish_article",
			Title:      title,
			Tags:       stringSliceArg(args, "tags"),
			CreatedAt:  time.Now(),
		}
		if err := r.ledger.RecordAttempt(ctx, attempt); err != nil {
			r.logger.Warn("failed to record publish attempt", "error", err)
		}
	}

	// Exactly one invocation. A timeout here is ambiguous, never retried.
	result := r.invoker.Invoke(ctx, "create_article", map[string]any{
		"title":         title,
		"body_markdown": body,
		"tags":          stringSliceArg(args, "tags"),
		"published":     boolArg(args, "published", true),
	})
	reply.addStep("create_article", result)

	switch {
	case result.OK():
		var article devto.Article
		if err := json.Unmarshal(result.Payload, &article); err != nil {
			return replyBadPayload(reply, "create_article", err)
		}
		if r.guard != nil {
			r.guard.Mark(key)
		}
		r.markOutcome(ctx, attemptID, store.OutcomePublished, article.ID, article.URL, "")
		reply.Text = fmt.Sprintf("Published %q: %s", article.Title, article.URL)

	case isAmbiguous(result.FailureKind()):
		// The request may have reached the platform. Mark the key so an
		// identical publish is refused until the window expires.
		if r.guard != nil {
			r.guard.Mark(key)
		}
		r.markOutcome(ctx, attemptID, store.OutcomeAmbiguous, 0, "", result.Failure.Message)
		reply.Failure = &protocol.Failure{
			Kind:    protocol.FailAmbiguousOutcome,
			Message: fmt.Sprintf("publish outcome unknown (%s); the article may exist on the platform", result.Failure.Kind),
		}

	default:
		r.markOutcome(ctx, attemptID, store.OutcomeFailed, 0, "", result.Failure.Message)
	}
	return reply
}

func runMyProfile(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	userResult := r.invokeRead(ctx, "get_current_user", nil)
	if !reply.addStep("get_current_user", userResult) {
		return reply
	}
	var user devto.User
	if err := json.Unmarshal(userResult.Payload, &user); err != nil {
		return replyBadPayload(reply, "get_current_user", err)
	}

	articlesResult := r.invokeRead(ctx, "get_user_articles", nil)
	if !reply.addStep("get_user_articles", articlesResult) {
		return reply
	}
	var page articlePage
	if err := json.Unmarshal(articlesResult.Payload, &page); err != nil {
		return replyBadPayload(reply, "get_user_articles", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (@%s)\n", user.Name, user.Username)
	if user.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", user.Summary)
	}
	sb.WriteString("\n")
	sb.WriteString(formatArticleList(fmt.Sprintf("%d article(s)", page.Count), page.Articles))
	reply.Text = sb.String()
	return reply
}

func runReadingList(ctx context.Context, r *Router, args map[string]any) *Reply {
	reply := &Reply{}
	result := r.invokeRead(ctx, "get_reading_list", nil)
	if !reply.addStep("get_reading_list", result) {
		return reply
	}
	var page articlePage
	if err := json.Unmarshal(result.Payload, &page); err != nil {
		return replyBadPayload(reply, "get_reading_list", err)
	}
	reply.Text = formatArticleList("Reading list", page.Articles)
	return reply
}

func (r *Router) markOutcome(ctx context.Context, attemptID, outcome string, articleID int, articleURL, detail string) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.MarkOutcome(ctx, attemptID, outcome, articleID, articleURL, detail); err != nil {
		r.logger.Warn("failed to record publish outcome", "error", err)
	}
}

func isAmbiguous(kind protocol.FailureKind) bool {
	switch kind {
	case protocol.FailTimeout, protocol.FailConnectionLost, protocol.FailAmbiguousOutcome:
		return true
	}
	return false
}

func formatArticleList(heading string, articles []devto.Article) string {
	var sb strings.Builder
	sb.WriteString(heading + ":\n")
	if len(articles) == 0 {
		sb.WriteString("  (none)\n")
		return sb.String()
	}
	for _, a := range articles {
		fmt.Fprintf(&sb, "  [%d] %s — @%s", a.ID, a.Title, a.User.Username)
		if len(a.TagList) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(a.TagList, ", "))
		}
		sb.WriteString("\n")
		summary := a.Description
		if summary == "" {
			summary = markdown.Summarize(a.BodyMarkdown, 120)
		}
		if summary != "" {
			fmt.Fprintf(&sb, "      %s\n", summary)
		}
	}
	return sb.String()
}

func replyBadPayload(reply *Reply, step string, err error) *Reply {
	reply.Failed = step
	reply.Failure = &protocol.Failure{
		Kind:    protocol.FailProtocolViolation,
		Message: fmt.Sprintf("unexpected payload from %s: %v", step, err),
	}
	return reply
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
