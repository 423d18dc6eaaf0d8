// ABOUTME: Declares the dev.to tool surface and binds handlers to the registry.
// ABOUTME: Each tool wraps one content-platform endpoint with a JSON schema.

package toolset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HeetVekariya/devto-agent/internal/devto"
	"github.com/HeetVekariya/devto-agent/internal/registry"
)

// Definitions returns the declared tool set without handlers, for the agent
// side of the bridge where execution happens remotely.
func Definitions() []registry.Definition {
	return []registry.Definition{
		{
			Name:        "list_articles",
			Description: "List recent published articles",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"page":{"type":"integer"},"per_page":{"type":"integer"}}}`),
		},
		{
			Name:         "list_articles_by_tags",
			Description:  "List published articles matching the given tags",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string"}}},"required":["tags"]}`),
			RequiredArgs: []string{"tags"},
		},
		{
			Name:         "get_article",
			Description:  "Fetch a single article with its full markdown body",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`),
			RequiredArgs: []string{"id"},
		},
		{
			Name:         "create_article",
			Description:  "Publish a new article",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"body_markdown":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},"published":{"type":"boolean"}},"required":["title","body_markdown"]}`),
			RequiredArgs: []string{"title", "body_markdown"},
		},
		{
			Name:        "get_current_user",
			Description: "Fetch the authenticated user's profile",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "get_user_articles",
			Description: "List the authenticated user's own articles",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "get_reading_list",
			Description: "List articles on the authenticated user's reading list",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:         "get_article_comments",
			Description:  "List comments on an article",
			InputSchema:  json.RawMessage(`{"type":"object","properties":{"article_id":{"type":"integer"}},"required":["article_id"]}`),
			RequiredArgs: []string{"article_id"},
		},
	}
}

// Register binds every tool to its handler against the given client.
func Register(reg *registry.Registry, client *devto.Client) error {
	h := &handlers{client: client}
	bindings := map[string]registry.Handler{
		"list_articles":         h.ListArticles,
		"list_articles_by_tags": h.ListArticlesByTags,
		"get_article":           h.GetArticle,
		"create_article":        h.CreateArticle,
		"get_current_user":      h.GetCurrentUser,
		"get_user_articles":     h.GetUserArticles,
		"get_reading_list":      h.GetReadingList,
		"get_article_comments":  h.GetArticleComments,
	}
	for _, def := range Definitions() {
		handler, ok := bindings[def.Name]
		if !ok {
			return fmt.Errorf("tool %s has no handler", def.Name)
		}
		if err := reg.Register(def, handler); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	client *devto.Client
}

type listArticlesInput struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func (h *handlers) ListArticles(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in listArticlesInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	articles, err := h.client.ListArticles(ctx, in.Page, in.PerPage)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"articles": articles, "count": len(articles)})
}

type listByTagsInput struct {
	Tags []string `json:"tags"`
}

func (h *handlers) ListArticlesByTags(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in listByTagsInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(in.Tags) == 0 {
		return nil, fmt.Errorf("tags must not be empty")
	}

	articles, err := h.client.ListArticlesByTags(ctx, in.Tags)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"articles": articles, "count": len(articles)})
}

type getArticleInput struct {
	ID int `json:"id"`
}

func (h *handlers) GetArticle(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in getArticleInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ID <= 0 {
		return nil, fmt.Errorf("id must be a positive article id")
	}

	article, err := h.client.GetArticleContent(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(article)
}

type createArticleInput struct {
	Title        string   `json:"title"`
	BodyMarkdown string   `json:"body_markdown"`
	Tags         []string `json:"tags"`
	Published    bool     `json:"published"`
}

func (h *handlers) CreateArticle(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in createArticleInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Title == "" || in.BodyMarkdown == "" {
		return nil, fmt.Errorf("title and body_markdown are required")
	}

	article, err := h.client.CreateArticle(ctx, devto.NewArticle{
		Title:        in.Title,
		BodyMarkdown: in.BodyMarkdown,
		Tags:         in.Tags,
		Published:    in.Published,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(article)
}

func (h *handlers) GetCurrentUser(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	user, err := h.client.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(user)
}

func (h *handlers) GetUserArticles(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	articles, err := h.client.GetUserArticles(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"articles": articles, "count": len(articles)})
}

func (h *handlers) GetReadingList(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	articles, err := h.client.GetReadingList(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"articles": articles, "count": len(articles)})
}

type articleCommentsInput struct {
	ArticleID int `json:"article_id"`
}

func (h *handlers) GetArticleComments(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in articleCommentsInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ArticleID <= 0 {
		return nil, fmt.Errorf("article_id must be a positive article id")
	}

	comments, err := h.client.GetArticleComments(ctx, in.ArticleID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"comments": comments, "count": len(comments)})
}
