package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Follow starts announcing new posts of an account. The first poll only
// records the latest post.
func (h *Handlers) Follow(ctx context.Context, req *usecase.Request) error {
	handle := strings.ToLower(req.Match.Arg(0))
	added := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, ok := cur.Following[handle]; ok {
			return false
		}
		cur.Following[handle] = ""
		return true
	})
	if !added {
		return h.reply(ctx, req, fmt.Sprintf("Already following %s.", handle))
	}
	return h.reply(ctx, req, fmt.Sprintf("Following %s.", handle))
}

// Unfollow stops following an account
func (h *Handlers) Unfollow(ctx context.Context, req *usecase.Request) error {
	handle := strings.ToLower(req.Match.Arg(0))
	removed := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, ok := cur.Following[handle]; !ok {
			return false
		}
		delete(cur.Following, handle)
		return true
	})
	if !removed {
		return h.reply(ctx, req, fmt.Sprintf("Not following %s.", handle))
	}
	return h.reply(ctx, req, fmt.Sprintf("Unfollowed %s.", handle))
}

// Subscribe adds a feed after checking it can be read. Only items published
// after the subscription are announced.
func (h *Handlers) Subscribe(ctx context.Context, req *usecase.Request) error {
	url := req.Match.Arg(0)
	if h.Feeds != nil {
		if _, err := h.Feeds.Fetch(ctx, url); err != nil {
			h.reply(ctx, req, fmt.Sprintf("I couldn't read %s.", url))
			return err
		}
	}

	since := h.now()
	added := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, ok := cur.Feeds[url]; ok {
			return false
		}
		cur.Feeds[url] = since
		return true
	})
	if !added {
		return h.reply(ctx, req, fmt.Sprintf("Already subscribed to %s.", url))
	}
	return h.reply(ctx, req, fmt.Sprintf("Subscribed to %s.", url))
}

// Unsubscribe removes a feed
func (h *Handlers) Unsubscribe(ctx context.Context, req *usecase.Request) error {
	url := req.Match.Arg(0)
	removed := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, ok := cur.Feeds[url]; !ok {
			return false
		}
		delete(cur.Feeds, url)
		return true
	})
	if !removed {
		return h.reply(ctx, req, fmt.Sprintf("Not subscribed to %s.", url))
	}
	return h.reply(ctx, req, fmt.Sprintf("Unsubscribed from %s.", url))
}

// ListFeeds lists followed accounts and subscribed feeds
func (h *Handlers) ListFeeds(ctx context.Context, req *usecase.Request) error {
	current, err := h.Store.Get(ctx, req.Record.ID)
	if err != nil {
		current = req.Record
	}
	if len(current.Following) == 0 && len(current.Feeds) == 0 {
		return h.reply(ctx, req, "Not following anything.")
	}

	var lines []string
	if len(current.Following) > 0 {
		handles := make([]string, 0, len(current.Following))
		for handle := range current.Following {
			handles = append(handles, handle)
		}
		sort.Strings(handles)
		lines = append(lines, "Accounts: "+strings.Join(handles, ", "))
	}
	if len(current.Feeds) > 0 {
		urls := make([]string, 0, len(current.Feeds))
		for url := range current.Feeds {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		lines = append(lines, "Feeds:")
		for _, url := range urls {
			lines = append(lines, "- "+url)
		}
	}
	if current.Muted {
		lines = append(lines, fmt.Sprintf("(muted, say \"%s unmute\" to get notifications)", h.config.Trigger))
	}
	return h.reply(ctx, req, strings.Join(lines, "\n"))
}
