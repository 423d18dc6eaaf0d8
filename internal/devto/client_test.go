// ABOUTME: Tests for the dev.to API client against an in-process HTTP server.
// ABOUTME: Covers auth headers, error translation, rate limits, and tag_list quirks.

package devto

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-key", server.Client(), testLogger())
}

func TestListArticlesSendsPagination(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/articles", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		json.NewEncoder(w).Encode([]Article{{ID: 1, Title: "Hello", TagList: TagList{"go"}}})
	})

	articles, err := client.ListArticles(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Hello", articles[0].Title)
	assert.Equal(t, TagList{"go"}, articles[0].TagList)
}

func TestListArticlesByTags(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go,rust", r.URL.Query().Get("tags"))
		json.NewEncoder(w).Encode([]Article{})
	})

	_, err := client.ListArticlesByTags(context.Background(), []string{"go", "rust"})
	require.NoError(t, err)
}

func TestGetArticleContentParsesCommaTagList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/articles/42", r.URL.Path)
		// The show endpoint returns tag_list as a comma string.
		io.WriteString(w, `{"id":42,"title":"T","body_markdown":"# T","tag_list":"go, testing"}`)
	})

	article, err := client.GetArticleContent(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "# T", article.BodyMarkdown)
	assert.Equal(t, TagList{"go", "testing"}, article.TagList)
}

func TestCreateArticleWrapsPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var payload struct {
			Article NewArticle `json:"article"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "My Post", payload.Article.Title)
		assert.True(t, payload.Article.Published)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Article{ID: 7, Title: payload.Article.Title, URL: "https://dev.to/u/my-post"})
	})

	created, err := client.CreateArticle(context.Background(), NewArticle{
		Title:        "My Post",
		BodyMarkdown: "body",
		Tags:         []string{"go"},
		Published:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, created.ID)
}

func TestNonTwoHundredBecomesRemoteError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"invalid api key"}`)
	})

	_, err := client.GetCurrentUser(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnauthorized, remote.HTTPStatus)
	assert.Equal(t, "invalid api key", remote.Message)
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListArticles(context.Background(), 1, 10)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 5*time.Second, limited.RetryAfter)
	assert.True(t, IsRateLimited(err))
}

func TestRateLimitDefaultsWithoutHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetReadingList(context.Background())
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 30*time.Second, limited.RetryAfter)
}

func TestGetReadingListUnwrapsItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readinglist", r.URL.Path)
		io.WriteString(w, `[{"article":{"id":3,"title":"Saved"}}]`)
	})

	articles, err := client.GetReadingList(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Saved", articles[0].Title)
}

func TestGetArticleCommentsQueriesByArticle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("a_id"))
		io.WriteString(w, `[{"id_code":"abc","body_html":"<p>nice</p>","children":[{"id_code":"def"}]}]`)
	})

	comments, err := client.GetArticleComments(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "abc", comments[0].IDCode)
	require.Len(t, comments[0].Children, 1)
}
