package data

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

const feedTimeout = 20 * time.Second

// feedSource fetches RSS, Atom and JSON feeds with gofeed
type feedSource struct {
	parser *gofeed.Parser
}

// NewFeedSource creates a feed source
func NewFeedSource() repo.FeedSource {
	return &feedSource{parser: gofeed.NewParser()}
}

// Fetch returns every item of the feed at url. Items without a
// publication date fall back to their update date.
func (s *feedSource) Fetch(ctx context.Context, feedURL string) ([]domain.FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	return convertItems(feed.Items), nil
}

func convertItems(items []*gofeed.Item) []domain.FeedItem {
	result := make([]domain.FeedItem, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		item := domain.FeedItem{
			ID:    it.GUID,
			Title: strings.TrimSpace(it.Title),
			Link:  it.Link,
		}
		if item.ID == "" {
			item.ID = it.Link
		}
		switch {
		case it.PublishedParsed != nil:
			item.Published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			item.Published = *it.UpdatedParsed
		}
		result = append(result, item)
	}
	return result
}

// accountSource reads an external account's timeline through a feed
// bridge. The template holds one %s for the handle.
type accountSource struct {
	feeds    repo.FeedSource
	template string
}

// NewAccountSource creates an account source. It returns nil when no template is configured.
func NewAccountSource(feeds repo.FeedSource, template string) repo.AccountSource {
	if template == "" {
		return nil
	}
	return &accountSource{feeds: feeds, template: template}
}

// Latest returns the newest item of the account, or nil when it has none
func (s *accountSource) Latest(ctx context.Context, handle string) (*domain.FeedItem, error) {
	items, err := s.feeds.Fetch(ctx, fmt.Sprintf(s.template, url.PathEscape(handle)))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	// Feeds list newest first, but not all of them; prefer dates when present.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	latest := items[0]
	return &latest, nil
}
