package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

const maxFeedNotifications = 5

// TickerConfig contains ticker configuration
type TickerConfig struct {
	Lateness    time.Duration // boundaries crossed longer ago than this are settled silently
	Concurrency int           // records scanned in parallel
}

// DefaultTickerConfig returns default ticker configuration
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Lateness:    600 * time.Second,
		Concurrency: 4,
	}
}

// Ticker runs the time-based checks over every stored conversation
type Ticker struct {
	store      *UpdateSerializer
	recordRepo repo.RecordRepo
	platform   repo.PlatformRepo
	feeds      repo.FeedSource
	accounts   repo.AccountSource
	config     TickerConfig
	logger     *zap.Logger

	now func() time.Time
}

// NewTicker creates a new ticker. feeds and accounts may be nil to disable
// those checks.
func NewTicker(
	store *UpdateSerializer,
	recordRepo repo.RecordRepo,
	platform repo.PlatformRepo,
	feeds repo.FeedSource,
	accounts repo.AccountSource,
	config TickerConfig,
	logger *zap.Logger,
) *Ticker {
	if config.Lateness <= 0 {
		config.Lateness = DefaultTickerConfig().Lateness
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultTickerConfig().Concurrency
	}
	return &Ticker{
		store:      store,
		recordRepo: recordRepo,
		platform:   platform,
		feeds:      feeds,
		accounts:   accounts,
		config:     config,
		logger:     logger.Named("ticker"),
		now:        time.Now,
	}
}

// Scan runs every check on every conversation. Only a failure to enumerate
// conversations is returned; per-record failures are logged.
func (t *Ticker) Scan(ctx context.Context) error {
	ids, err := t.recordRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := t.ScanRecord(gctx, id)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				t.logger.Debug("Indexed conversation not stored yet", zap.String("chat", id))
			case err != nil:
				t.logger.Warn("Scan failed", zap.String("chat", id), zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// ScanRecord runs the event, account and feed checks on one conversation
func (t *Ticker) ScanRecord(ctx context.Context, id string) error {
	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	now := t.now()
	t.CheckEvents(ctx, rec, now)
	t.CheckAccounts(ctx, rec)
	t.CheckFeeds(ctx, rec)
	return nil
}

// CheckEvents fires due event boundaries. Each boundary is settled once; a
// boundary crossed longer ago than the lateness threshold is settled without
// a notification. Muted conversations are still notified.
func (t *Ticker) CheckEvents(ctx context.Context, rec *domain.ConversationRecord, now time.Time) {
	titles := make([]string, 0, len(rec.Events))
	for title := range rec.Events {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	for _, title := range titles {
		ev := rec.Events[title]
		if ev == nil {
			continue
		}
		b := ev.Due(now)
		if b.Kind == domain.BoundaryNone {
			continue
		}

		if b.Late(now, t.config.Lateness) {
			t.logger.Info("Skipping late notification",
				zap.String("chat", rec.ID),
				zap.String("event", title),
				zap.Time("due", b.At))
		} else {
			text, mentions := eventNotification(rec, ev, b, now)
			if _, err := t.platform.SendTextWithMentions(ctx, rec.ID, text, mentions); err != nil {
				t.logger.Warn("Failed to send event notification",
					zap.String("chat", rec.ID),
					zap.String("event", title),
					zap.Error(err))
			}
		}

		t.store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
			ev, ok := cur.Events[title]
			if !ok {
				return
			}
			// settle only the boundary that was observed
			if due := ev.Due(now); due.Kind != b.Kind || !due.At.Equal(b.At) {
				return
			}
			if !ev.Settle(b) {
				delete(cur.Events, title)
			}
		})
	}
}

func eventNotification(rec *domain.ConversationRecord, ev *domain.ScheduledEvent, b domain.Boundary, now time.Time) (string, []domain.Member) {
	if ev.Reminder {
		owner := domain.Member{UserID: ev.Owner, Name: rec.DisplayName(ev.Owner)}
		return fmt.Sprintf("Reminder: %s", ev.Title), []domain.Member{owner}
	}

	mentions := make([]domain.Member, 0, len(ev.Going))
	for _, r := range ev.Going {
		mentions = append(mentions, domain.Member{UserID: r.UserID, Name: r.Name})
	}
	if b.Kind == domain.BoundaryEarly {
		in := ev.At.Sub(now).Round(time.Minute)
		return fmt.Sprintf("%s starts in %s (%s)", ev.Title, in, ev.At.Format("Mon Jan 2 15:04")), mentions
	}
	return fmt.Sprintf("%s is starting now", ev.Title), mentions
}

// CheckAccounts notifies about new items of followed accounts
func (t *Ticker) CheckAccounts(ctx context.Context, rec *domain.ConversationRecord) {
	if t.accounts == nil {
		return
	}

	handles := make([]string, 0, len(rec.Following))
	for h := range rec.Following {
		handles = append(handles, h)
	}
	sort.Strings(handles)

	for _, handle := range handles {
		last := rec.Following[handle]
		item, err := t.accounts.Latest(ctx, handle)
		if err != nil {
			t.logger.Warn("Failed to poll account",
				zap.String("chat", rec.ID),
				zap.String("handle", handle),
				zap.Error(err))
			continue
		}
		if item == nil || item.ID == last {
			continue
		}

		// an empty last id means nothing was seen yet: record without notifying
		if last != "" && !rec.Muted {
			text := fmt.Sprintf("%s posted: %s", handle, itemText(item))
			if _, err := t.platform.SendText(ctx, rec.ID, text); err != nil {
				t.logger.Warn("Failed to send account notification", zap.String("chat", rec.ID), zap.Error(err))
			}
		}

		itemID := item.ID
		t.store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
			if _, ok := cur.Following[handle]; ok {
				cur.Following[handle] = itemID
			}
		})
	}
}

// CheckFeeds notifies about feed items published after the last check and
// advances the last-checked time to the newest item seen
func (t *Ticker) CheckFeeds(ctx context.Context, rec *domain.ConversationRecord) {
	if t.feeds == nil {
		return
	}

	urls := make([]string, 0, len(rec.Feeds))
	for u := range rec.Feeds {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	for _, url := range urls {
		last := rec.Feeds[url]
		items, err := t.feeds.Fetch(ctx, url)
		if err != nil {
			t.logger.Warn("Failed to poll feed",
				zap.String("chat", rec.ID),
				zap.String("url", url),
				zap.Error(err))
			continue
		}

		newest := last
		var fresh []domain.FeedItem
		for _, item := range items {
			if !item.Published.After(last) {
				continue
			}
			fresh = append(fresh, item)
			if item.Published.After(newest) {
				newest = item.Published
			}
		}
		if len(fresh) == 0 {
			continue
		}
		sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Published.Before(fresh[j].Published) })

		if !rec.Muted {
			if _, err := t.platform.SendText(ctx, rec.ID, feedText(url, fresh)); err != nil {
				t.logger.Warn("Failed to send feed notification", zap.String("chat", rec.ID), zap.Error(err))
			}
		}

		t.store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
			if prev, ok := cur.Feeds[url]; ok && newest.After(prev) {
				cur.Feeds[url] = newest
			}
		})
	}
}

func feedText(url string, items []domain.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New in %s:", url)
	shown := items
	if len(shown) > maxFeedNotifications {
		shown = shown[len(shown)-maxFeedNotifications:]
	}
	for _, item := range shown {
		b.WriteString("\n- " + itemText(&item))
	}
	if extra := len(items) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n(+%d older)", extra)
	}
	return b.String()
}

func itemText(item *domain.FeedItem) string {
	switch {
	case item.Title != "" && item.Link != "":
		return item.Title + " " + item.Link
	case item.Title != "":
		return item.Title
	default:
		return item.Link
	}
}
