// ABOUTME: HTTP client for the dev.to (Forem) content platform API.
// ABOUTME: Non-2xx responses map to RemoteError; 429 maps to RateLimitedError.

package devto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Forem API root for dev.to.
const DefaultBaseURL = "https://dev.to/api"

// RemoteError is a non-2xx platform response.
type RemoteError struct {
	HTTPStatus int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("platform error: status %d: %s", e.HTTPStatus, e.Message)
}

// RateLimitedError is a 429 response with the server's retry hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Client calls the content platform. The API key and base URL are passed
// through opaquely from configuration; the bridge never inspects them.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient builds a Client. An empty baseURL means the public dev.to API;
// an empty apiKey restricts the client to unauthenticated endpoints.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.With("component", "devto"),
	}
}

// ListArticles returns a page of published articles.
func (c *Client) ListArticles(ctx context.Context, page, perPage int) ([]Article, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}

	var articles []Article
	if err := c.get(ctx, "/articles", q, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// ListArticlesByTags returns articles matching all of the given tags.
func (c *Client) ListArticlesByTags(ctx context.Context, tags []string) ([]Article, error) {
	q := url.Values{}
	q.Set("tags", strings.Join(tags, ","))

	var articles []Article
	if err := c.get(ctx, "/articles", q, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// GetArticleContent returns a single article including its markdown body.
func (c *Client) GetArticleContent(ctx context.Context, id int) (*Article, error) {
	var article Article
	if err := c.get(ctx, fmt.Sprintf("/articles/%d", id), nil, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

// CreateArticle publishes a new article. Not idempotent: callers own the
// retry decision.
func (c *Client) CreateArticle(ctx context.Context, article NewArticle) (*Article, error) {
	body := struct {
		Article NewArticle `json:"article"`
	}{Article: article}

	var created Article
	if err := c.post(ctx, "/articles", body, &created); err != nil {
		return nil, err
	}
	c.logger.Info("article created",
		"article_id", created.ID,
		"title", created.Title,
	)
	return &created, nil
}

// GetCurrentUser returns the account owning the API key.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserArticles returns the authenticated user's own articles.
func (c *Client) GetUserArticles(ctx context.Context) ([]Article, error) {
	var articles []Article
	if err := c.get(ctx, "/articles/me", nil, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// readingListItem wraps an article in the reading list response.
type readingListItem struct {
	Article Article `json:"article"`
}

// GetReadingList returns the articles on the authenticated user's reading list.
func (c *Client) GetReadingList(ctx context.Context) ([]Article, error) {
	var items []readingListItem
	if err := c.get(ctx, "/readinglist", nil, &items); err != nil {
		return nil, err
	}
	articles := make([]Article, 0, len(items))
	for _, item := range items {
		articles = append(articles, item.Article)
	}
	return articles, nil
}

// GetArticleComments returns the comment tree for an article.
func (c *Client) GetArticleComments(ctx context.Context, articleID int) ([]Comment, error) {
	q := url.Values{}
	q.Set("a_id", strconv.Itoa(articleID))

	var comments []Comment
	if err := c.get(ctx, "/comments", q, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do runs one API request and decodes the response. Error translation:
// 429 becomes RateLimitedError with the Retry-After hint, any other non-2xx
// becomes RemoteError carrying the platform's error message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.forem.api-v1+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			HTTPStatus: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// readErrorMessage extracts the platform's error field, falling back to the
// raw body when it is not the usual {"error": ...} shape.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

// parseRetryAfter reads the Retry-After header in seconds, defaulting to a
// conservative backoff when the header is absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 30 * time.Second
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
