package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// KindReddit keys the Reddit adapter.
const KindReddit = "reddit"

const (
	contentTypePost  = "post"
	redditAPIBase    = "https://oauth.reddit.com"
	redditAuthBase   = "https://www.reddit.com"
	redditDefaultMax = 25
	redditUserAgent  = "creatorpulse/1.0"
)

// Reddit fetch types
var redditFetchTypes = map[string]bool{
	"hot": true, "new": true, "top": true, "rising": true,
}

type redditConnector struct {
	sourceID    uint
	config      map[string]interface{}
	credentials map[string]interface{}
	apiBase     string
	authBase    string

	accessToken string
}

// NewRedditConnector builds the Reddit adapter. Credentials carry the
// per-user script-app client_id/client_secret pair.
func NewRedditConnector(sourceID uint, config, credentials map[string]interface{}) (Connector, error) {
	return &redditConnector{
		sourceID:    sourceID,
		config:      config,
		credentials: credentials,
		apiBase:     redditAPIBase,
		authBase:    redditAuthBase,
	}, nil
}

func (c *redditConnector) Kind() string { return KindReddit }

func (c *redditConnector) RequiredCredentials() []string {
	return []string{"client_id", "client_secret"}
}

func (c *redditConnector) RequiredConfig() []string {
	return []string{"subreddit", "fetch_type"}
}

// Validate authenticates and checks the subreddit exists.
func (c *redditConnector) Validate(ctx context.Context) error {
	if missing := missingKeys(c.credentials, c.RequiredCredentials()); len(missing) > 0 {
		return &ValidationError{Kind: KindReddit, Missing: missing}
	}
	subreddit := configString(c.config, "subreddit")
	if subreddit == "" {
		return &ValidationError{Kind: KindReddit, Missing: []string{"subreddit"}}
	}
	if ft := configString(c.config, "fetch_type"); ft != "" && !redditFetchTypes[ft] {
		return &ValidationError{Kind: KindReddit,
			Reason: fmt.Sprintf("fetch_type must be one of hot, new, top, rising; got %q", ft)}
	}

	if err := c.authenticate(ctx); err != nil {
		return err
	}

	var about struct {
		Data struct {
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/about", subreddit), nil, &about); err != nil {
		return err
	}
	if about.Data.DisplayName == "" {
		return &ValidationError{Kind: KindReddit, Reason: fmt.Sprintf("subreddit %q not found", subreddit)}
	}
	return nil
}

// Fetch returns up to max_results posts from the configured listing.
func (c *redditConnector) Fetch(ctx context.Context, since *time.Time) ([]Item, error) {
	subreddit := configString(c.config, "subreddit")
	if subreddit == "" {
		return nil, &ValidationError{Kind: KindReddit, Missing: []string{"subreddit"}}
	}
	fetchType := configString(c.config, "fetch_type")
	if fetchType == "" {
		fetchType = "hot"
	}
	if !redditFetchTypes[fetchType] {
		return nil, &ValidationError{Kind: KindReddit,
			Reason: fmt.Sprintf("fetch_type must be one of hot, new, top, rising; got %q", fetchType)}
	}

	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"limit": {fmt.Sprintf("%d", configInt(c.config, "max_results", redditDefaultMax))},
	}
	if fetchType == "top" {
		if tf := configString(c.config, "time_filter"); tf != "" {
			params.Set("t", tf)
		}
	}

	var listing struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					URL         string  `json:"url"`
					Permalink   string  `json:"permalink"`
					Author      string  `json:"author"`
					Score       int     `json:"score"`
					NumComments int     `json:"num_comments"`
					CreatedUTC  float64 `json:"created_utc"`
					ID          string  `json:"id"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/r/%s/%s", subreddit, fetchType), params, &listing); err != nil {
		return nil, err
	}

	var items []Item
	for _, child := range listing.Data.Children {
		post := child.Data
		published := time.Unix(int64(post.CreatedUTC), 0).UTC()
		if !afterCutoff(published, since) {
			continue
		}

		permalink := "https://www.reddit.com" + post.Permalink
		content := post.SelfText
		if content == "" {
			content = post.URL
		}

		items = append(items, Item{
			ContentType: contentTypePost,
			Title:       post.Title,
			Content:     content,
			URL:         permalink,
			PublishedAt: published,
			Metadata: map[string]interface{}{
				"post_id":      post.ID,
				"author":       post.Author,
				"score":        post.Score,
				"num_comments": post.NumComments,
				"subreddit":    subreddit,
			},
		})
	}
	return items, nil
}

// authenticate obtains an app-only OAuth token. The token is cached on the
// connector for the life of one crawl.
func (c *redditConnector) authenticate(ctx context.Context) error {
	if c.accessToken != "" {
		return nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authBase+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(configString(c.credentials, "client_id"), configString(c.credentials, "client_secret"))
	req.Header.Set("User-Agent", redditUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reddit auth failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit auth returned status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("reddit auth response unparseable: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("reddit auth returned no token")
	}
	c.accessToken = token.AccessToken
	return nil
}

func (c *redditConnector) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.apiBase + path
	if params != nil {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", redditUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reddit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
