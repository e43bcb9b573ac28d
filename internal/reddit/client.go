package reddit

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/redditcraft/commission-pipeline/core/config"
	errs "github.com/redditcraft/commission-pipeline/core/errors"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Post is the subset of a social-platform post this system cares about.
type Post struct {
	ExternalID     string
	Title          string
	Body           string
	Score          int
	Over18         bool
	Permalink      string
	SubredditName  string
	CommentSummary string
}

// SubredditInfo is the subset of a subreddit's metadata this system cares
// about.
type SubredditInfo struct {
	Name        string
	DisplayName string
	Over18      bool
}

// Client is the thin social-platform (Reddit) API adapter. It does no
// validation itself — that's CommissionValidator's job — it only fetches
// and loosely parses upstream JSON.
type Client struct {
	http      *resty.Client
	userAgent string
	logger    logger.Logger
}

// NewClient constructs a Client using the shared instrumented HTTP client.
func NewClient(cfg *config.AppConfig, logger logger.Logger) *Client {
	client := resty.NewWithClient(services.NewInstrumentedHTTPClient())
	client.SetBaseURL(cfg.SocialBaseURL)
	client.SetHeader("User-Agent", cfg.SocialUserAgent)

	return &Client{http: client, userAgent: cfg.SocialUserAgent, logger: logger}
}

var postIDPattern = regexp.MustCompile(`/comments/([a-z0-9]+)/`)

// ParsePostIdentifier extracts a bare post id from either a raw id or a
// platform permalink/URL (spec §4.D: "parse a post identifier from either
// a bare id or a platform URL").
func ParsePostIdentifier(idOrURL string) (string, error) {
	trimmed := strings.TrimSpace(idOrURL)
	if trimmed == "" {
		return "", fmt.Errorf("reddit: empty post identifier")
	}
	if !strings.Contains(trimmed, "/") && !strings.Contains(trimmed, "http") {
		return trimmed, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("reddit: invalid post url: %w", err)
	}

	if match := postIDPattern.FindStringSubmatch(parsed.Path); len(match) == 2 {
		return match[1], nil
	}
	return "", fmt.Errorf("reddit: could not extract a post id from %q", idOrURL)
}

// GetSubreddit fetches a subreddit's about page.
func (c *Client) GetSubreddit(ctx context.Context, name string) (*SubredditInfo, error) {
	resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/r/%s/about.json", name))
	if err != nil {
		return nil, errs.UpstreamUnavailableError("reddit about request failed", err)
	}
	if resp.StatusCode() == 404 {
		return nil, errs.NotFoundError(fmt.Sprintf("subreddit %q not found", name))
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("reddit about request rejected: %s", resp.String()), nil)
	}

	data := gjson.GetBytes(resp.Body(), "data")
	return &SubredditInfo{
		Name:        data.Get("display_name").String(),
		DisplayName: data.Get("title").String(),
		Over18:      data.Get("over18").Bool(),
	}, nil
}

// GetPost fetches a single post by its external id.
func (c *Client) GetPost(ctx context.Context, externalID string) (*Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/by_id/t3_%s.json", externalID))
	if err != nil {
		return nil, errs.UpstreamUnavailableError("reddit post request failed", err)
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("reddit post request rejected: %s", resp.String()), nil)
	}

	entry := gjson.GetBytes(resp.Body(), "data.children.0.data")
	if !entry.Exists() {
		return nil, errs.NotFoundError(fmt.Sprintf("post %q not found", externalID))
	}
	if entry.Get("removed_by_category").Exists() && entry.Get("removed_by_category").String() != "" {
		return nil, errs.NotFoundError(fmt.Sprintf("post %q was removed", externalID))
	}

	return &Post{
		ExternalID:     externalID,
		Title:          entry.Get("title").String(),
		Body:           entry.Get("selftext").String(),
		Score:          int(entry.Get("score").Int()),
		Over18:         entry.Get("over_18").Bool(),
		Permalink:      entry.Get("permalink").String(),
		SubredditName:  entry.Get("subreddit").String(),
		CommentSummary: entry.Get("num_comments").String() + " comments",
	}, nil
}

// GetRandomPost returns the top post of the subreddit's hot listing (the
// first of up to 25), used by random_subreddit commission validation.
func (c *Client) GetRandomPost(ctx context.Context, subreddit string) (*Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/r/%s/hot.json?limit=25", subreddit))
	if err != nil {
		return nil, errs.UpstreamUnavailableError("reddit hot listing request failed", err)
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("reddit hot listing rejected: %s", resp.String()), nil)
	}

	children := gjson.GetBytes(resp.Body(), "data.children")
	if !children.IsArray() || len(children.Array()) == 0 {
		return nil, errs.NotFoundError(fmt.Sprintf("no posts found in r/%s", subreddit))
	}

	entry := children.Array()[0].Get("data")
	return &Post{
		ExternalID:     entry.Get("id").String(),
		Title:          entry.Get("title").String(),
		Body:           entry.Get("selftext").String(),
		Score:          int(entry.Get("score").Int()),
		Over18:         entry.Get("over_18").Bool(),
		Permalink:      entry.Get("permalink").String(),
		SubredditName:  subreddit,
		CommentSummary: entry.Get("num_comments").String() + " comments",
	}, nil
}

// GetHotPosts fetches up to limit posts from a subreddit's hot listing,
// used by the PipelineEngine's post-selection policy (spec §4.F).
func (c *Client) GetHotPosts(ctx context.Context, subreddit string, limit int) ([]*Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/r/%s/hot.json?limit=%d", subreddit, limit))
	if err != nil {
		return nil, errs.UpstreamUnavailableError("reddit hot listing request failed", err)
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("reddit hot listing rejected: %s", resp.String()), nil)
	}

	var posts []*Post
	for _, child := range gjson.GetBytes(resp.Body(), "data.children").Array() {
		entry := child.Get("data")
		posts = append(posts, &Post{
			ExternalID:     entry.Get("id").String(),
			Title:          entry.Get("title").String(),
			Body:           entry.Get("selftext").String(),
			Score:          int(entry.Get("score").Int()),
			Over18:         entry.Get("over_18").Bool(),
			Permalink:      entry.Get("permalink").String(),
			SubredditName:  subreddit,
			CommentSummary: entry.Get("num_comments").String() + " comments",
		})
	}
	return posts, nil
}

// Upvote casts an upvote on a post, used by CommunityAgent.
func (c *Client) Upvote(ctx context.Context, externalID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetFormData(map[string]string{"id": "t3_" + externalID, "dir": "1"}).
		Post("/api/vote")
	if err != nil {
		return errs.UpstreamUnavailableError("reddit upvote request failed", err)
	}
	if resp.IsError() {
		return errs.UpstreamUnavailableError(fmt.Sprintf("reddit upvote rejected: %s", resp.String()), nil)
	}
	return nil
}

// Comment posts a reply to a post or comment, used by CommunityAgent's
// welcome replies and PromoterAgent's promotional comment. thingID is a
// fullname ("t3_<id>" for a post, "t1_<id>" for a comment).
func (c *Client) Comment(ctx context.Context, thingID, body string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetFormData(map[string]string{"thing_id": thingID, "text": body}).
		Post("/api/comment")
	if err != nil {
		return "", errs.UpstreamUnavailableError("reddit comment request failed", err)
	}
	if resp.IsError() {
		return "", errs.UpstreamUnavailableError(fmt.Sprintf("reddit comment rejected: %s", resp.String()), nil)
	}

	commentID := gjson.GetBytes(resp.Body(), "json.data.things.0.data.id").String()
	return commentID, nil
}

// GetFrontPage samples posts from the platform's front page, used by the
// PromoterAgent.
func (c *Client) GetFrontPage(ctx context.Context, limit int) ([]*Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get(fmt.Sprintf("/hot.json?limit=%d", limit))
	if err != nil {
		return nil, errs.UpstreamUnavailableError("reddit front page request failed", err)
	}
	if resp.IsError() {
		return nil, errs.UpstreamUnavailableError(fmt.Sprintf("reddit front page rejected: %s", resp.String()), nil)
	}

	var posts []*Post
	for _, child := range gjson.GetBytes(resp.Body(), "data.children").Array() {
		entry := child.Get("data")
		posts = append(posts, &Post{
			ExternalID:    entry.Get("id").String(),
			Title:         entry.Get("title").String(),
			Score:         int(entry.Get("score").Int()),
			Over18:        entry.Get("over_18").Bool(),
			Permalink:     entry.Get("permalink").String(),
			SubredditName: entry.Get("subreddit").String(),
		})
	}
	return posts, nil
}
