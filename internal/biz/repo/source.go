package repo

import (
	"context"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// FeedSource fetches the items of a subscribed feed
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]domain.FeedItem, error)
}

// AccountSource fetches the latest item of a followed external account
type AccountSource interface {
	Latest(ctx context.Context, handle string) (*domain.FeedItem, error)
}
