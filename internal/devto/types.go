// ABOUTME: Data types returned by the dev.to (Forem) REST API.
// ABOUTME: TagList absorbs the API's array-vs-comma-string inconsistency.

package devto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagList is a list of article tags. The Forem API returns tag_list as a
// JSON array on index endpoints and as a comma-separated string on the
// single-article endpoint, so this type accepts both.
type TagList []string

// UnmarshalJSON accepts either a JSON array of strings or one
// comma-separated string.
func (t *TagList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*t = arr
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tag_list is neither array nor string: %w", err)
	}
	if s == "" {
		*t = nil
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	*t = tags
	return nil
}

// Article is a published article as returned by list and show endpoints.
// BodyMarkdown is only populated on the single-article endpoint.
type Article struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	BodyMarkdown string  `json:"body_markdown,omitempty"`
	TagList      TagList `json:"tag_list"`
	PublishedAt  string  `json:"published_at"`
	ReadingTime  int     `json:"reading_time_minutes"`
	Reactions    int     `json:"positive_reactions_count"`
	CommentCount int     `json:"comments_count"`
	User         Author  `json:"user"`
}

// Author is the embedded author summary on articles and comments.
type Author struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// User is the authenticated account returned by /users/me.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Summary  string `json:"summary"`
	Location string `json:"location"`
	JoinedAt string `json:"joined_at"`
}

// Comment is one comment on an article; Children nest replies.
type Comment struct {
	IDCode    string    `json:"id_code"`
	BodyHTML  string    `json:"body_html"`
	CreatedAt string    `json:"created_at"`
	User      Author    `json:"user"`
	Children  []Comment `json:"children,omitempty"`
}

// NewArticle is the payload for creating an article. Published defaults to
// true at the call site; the API itself defaults to a draft.
type NewArticle struct {
	Title        string   `json:"title"`
	BodyMarkdown string   `json:"body_markdown"`
	Tags         []string `json:"tags,omitempty"`
	Published    bool     `json:"published"`
}
