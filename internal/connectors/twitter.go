package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/dghubble/oauth1"
)

// KindTwitter keys the Twitter/X adapter.
const KindTwitter = "twitter"

const (
	contentTypeTweet  = "tweet"
	twitterAPIBase    = "https://api.twitter.com/2"
	twitterDefaultMax = 25
	// The provider rejects max_results below 5.
	twitterMinResults = 5
)

// Twitter fetch types
const (
	TwitterFetchTimeline = "timeline"
	TwitterFetchMentions = "mentions"
	TwitterFetchLikes    = "likes"
	TwitterFetchList     = "list"
)

// oauth1Keys is the full OAuth 1.0a quadruple. Either all four are present
// or the credentials must carry a bearer token.
var oauth1Keys = []string{"api_key", "api_secret", "access_token", "access_token_secret"}

type twitterConnector struct {
	sourceID    uint
	config      map[string]interface{}
	credentials map[string]interface{}
	apiBase     string
}

// NewTwitterConnector builds the Twitter/X adapter.
func NewTwitterConnector(sourceID uint, config, credentials map[string]interface{}) (Connector, error) {
	return &twitterConnector{
		sourceID:    sourceID,
		config:      config,
		credentials: credentials,
		apiBase:     twitterAPIBase,
	}, nil
}

func (c *twitterConnector) Kind() string { return KindTwitter }

func (c *twitterConnector) RequiredCredentials() []string {
	// Bearer token alone is sufficient; otherwise the full quadruple.
	return append([]string{"bearer_token"}, oauth1Keys...)
}

func (c *twitterConnector) RequiredConfig() []string { return []string{"username", "fetch_type"} }

// checkCredentials enforces the either/or contract: a bearer token, or the
// complete OAuth 1.0a quadruple. A partial quadruple is rejected with the
// missing fields listed.
func (c *twitterConnector) checkCredentials() error {
	if configString(c.credentials, "bearer_token") != "" {
		return nil
	}
	missing := missingKeys(c.credentials, oauth1Keys)
	if len(missing) == len(oauth1Keys) {
		return &ValidationError{Kind: KindTwitter,
			Reason: "either bearer_token or the OAuth 1.0a credentials (api_key, api_secret, access_token, access_token_secret) are required"}
	}
	if len(missing) > 0 {
		return &ValidationError{Kind: KindTwitter, Missing: missing}
	}
	return nil
}

// authedClient returns an HTTP client that signs requests, either via OAuth
// 1.0a or untouched for bearer-token auth (added per request).
func (c *twitterConnector) authedClient(ctx context.Context) *http.Client {
	if configString(c.credentials, "bearer_token") != "" {
		return httpClient
	}
	cfg := oauth1.NewConfig(
		configString(c.credentials, "api_key"),
		configString(c.credentials, "api_secret"),
	)
	token := oauth1.NewToken(
		configString(c.credentials, "access_token"),
		configString(c.credentials, "access_token_secret"),
	)
	return cfg.Client(ctx, token)
}

// Validate checks credentials and resolves the configured username to a user
// ID, normalizing config["user_id"].
func (c *twitterConnector) Validate(ctx context.Context) error {
	if err := c.checkCredentials(); err != nil {
		return err
	}
	if configString(c.config, "fetch_type") == TwitterFetchList {
		if configString(c.config, "list_id") == "" {
			return &ValidationError{Kind: KindTwitter, Missing: []string{"list_id"}}
		}
		return nil
	}

	username := configString(c.config, "username")
	if username == "" && configString(c.config, "user_id") == "" {
		return &ValidationError{Kind: KindTwitter, Missing: []string{"username"}}
	}
	if configString(c.config, "user_id") != "" {
		return nil
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/users/by/username/"+url.PathEscape(username), nil, &resp); err != nil {
		return err
	}
	if resp.Data.ID == "" {
		return &ValidationError{Kind: KindTwitter, Reason: fmt.Sprintf("user %q not found", username)}
	}
	c.config["user_id"] = resp.Data.ID
	return nil
}

// Fetch returns up to max_results tweets of the configured fetch_type.
func (c *twitterConnector) Fetch(ctx context.Context, since *time.Time) ([]Item, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	maxResults := configInt(c.config, "max_results", twitterDefaultMax)
	if maxResults < twitterMinResults {
		maxResults = twitterMinResults
	}

	fetchType := configString(c.config, "fetch_type")
	if fetchType == "" {
		fetchType = TwitterFetchTimeline
	}

	var path string
	switch fetchType {
	case TwitterFetchTimeline:
		path = "/users/" + configString(c.config, "user_id") + "/tweets"
	case TwitterFetchMentions:
		path = "/users/" + configString(c.config, "user_id") + "/mentions"
	case TwitterFetchLikes:
		path = "/users/" + configString(c.config, "user_id") + "/liked_tweets"
	case TwitterFetchList:
		path = "/lists/" + configString(c.config, "list_id") + "/tweets"
	default:
		return nil, &ValidationError{Kind: KindTwitter,
			Reason: fmt.Sprintf("unknown fetch_type %q", fetchType)}
	}
	if fetchType != TwitterFetchList && configString(c.config, "user_id") == "" {
		return nil, &ValidationError{Kind: KindTwitter, Missing: []string{"user_id"}}
	}

	params := url.Values{
		"max_results":  {fmt.Sprintf("%d", maxResults)},
		"tweet.fields": {"created_at,public_metrics,author_id"},
	}
	if since != nil && fetchType != TwitterFetchLikes {
		params.Set("start_time", since.UTC().Format(time.RFC3339))
	}

	var resp struct {
		Data []struct {
			ID            string    `json:"id"`
			Text          string    `json:"text"`
			AuthorID      string    `json:"author_id"`
			CreatedAt     time.Time `json:"created_at"`
			PublicMetrics struct {
				RetweetCount int `json:"retweet_count"`
				ReplyCount   int `json:"reply_count"`
				LikeCount    int `json:"like_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	var items []Item
	for _, tweet := range resp.Data {
		if !afterCutoff(tweet.CreatedAt, since) {
			continue
		}
		title := truncateRunes(tweet.Text, 80)
		items = append(items, Item{
			ContentType: contentTypeTweet,
			Title:       title,
			Content:     tweet.Text,
			URL:         "https://twitter.com/i/status/" + tweet.ID,
			PublishedAt: tweet.CreatedAt,
			Metadata: map[string]interface{}{
				"tweet_id":      tweet.ID,
				"author_id":     tweet.AuthorID,
				"retweet_count": tweet.PublicMetrics.RetweetCount,
				"reply_count":   tweet.PublicMetrics.ReplyCount,
				"like_count":    tweet.PublicMetrics.LikeCount,
			},
		})
	}
	return items, nil
}

func (c *twitterConnector) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.apiBase + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if bearer := configString(c.credentials, "bearer_token"); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.authedClient(ctx).Do(req)
	if err != nil {
		return fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitter API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// truncateRunes shortens s to at most n runes, never splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
