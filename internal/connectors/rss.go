package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// KindRSS keys the RSS/Atom adapter.
const KindRSS = "rss"

const contentTypeArticle = "article"

type rssConnector struct {
	sourceID uint
	config   map[string]interface{}
	parser   *gofeed.Parser
}

// NewRSSConnector builds the RSS/Atom adapter. The feed URL lives in
// config["feed_url"]; no credentials are required.
func NewRSSConnector(sourceID uint, config, _ map[string]interface{}) (Connector, error) {
	parser := gofeed.NewParser()
	parser.Client = httpClient
	return &rssConnector{
		sourceID: sourceID,
		config:   config,
		parser:   parser,
	}, nil
}

func (c *rssConnector) Kind() string { return KindRSS }

func (c *rssConnector) RequiredCredentials() []string { return nil }

func (c *rssConnector) RequiredConfig() []string { return []string{"feed_url"} }

// Validate fetches and parses the feed head.
func (c *rssConnector) Validate(ctx context.Context) error {
	feedURL := configString(c.config, "feed_url")
	if feedURL == "" {
		return &ValidationError{Kind: KindRSS, Missing: []string{"feed_url"}}
	}
	if _, err := c.parser.ParseURLWithContext(feedURL, ctx); err != nil {
		return &ValidationError{Kind: KindRSS, Reason: fmt.Sprintf("failed to parse feed: %v", err)}
	}
	return nil
}

// Fetch returns every feed entry newer than since. Entries with no link are
// skipped because the link is the dedup key.
func (c *rssConnector) Fetch(ctx context.Context, since *time.Time) ([]Item, error) {
	feedURL := configString(c.config, "feed_url")
	if feedURL == "" {
		return nil, &ValidationError{Kind: KindRSS, Missing: []string{"feed_url"}}
	}

	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	var items []Item
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue
		}

		published := time.Time{}
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}
		if !afterCutoff(published, since) {
			continue
		}

		content := entry.Content
		if content == "" {
			content = entry.Description
		}

		metadata := map[string]interface{}{
			"feed_title": feed.Title,
			"feed_url":   feedURL,
			"guid":       entry.GUID,
		}
		if len(entry.Categories) > 0 {
			metadata["tags"] = entry.Categories
		}
		if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			metadata["author"] = entry.Authors[0].Name
		}

		items = append(items, Item{
			ContentType: contentTypeArticle,
			Title:       entry.Title,
			Content:     content,
			URL:         entry.Link,
			PublishedAt: published,
			Metadata:    metadata,
		})
	}
	return items, nil
}
