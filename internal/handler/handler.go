package handler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

const timeLayout = "Mon Jan 2 15:04"

// Config contains handler configuration
type Config struct {
	Trigger           string
	OwnerID           string
	BroadcastDeadline time.Duration
}

// Deps are the collaborators the built-in commands use
type Deps struct {
	Store    *usecase.UpdateSerializer
	Records  repo.RecordRepo
	Platform repo.PlatformRepo
	Registry *usecase.Registry
	Stats    repo.StatsRepo
	Feeds    repo.FeedSource // optional, validates subscriptions
	Ask      repo.AskRepo    // optional
}

// Handlers implements the built-in commands
type Handlers struct {
	Deps
	config Config
	logger *zap.Logger
	now    func() time.Time

	// delayed work such as re-adding kicked members
	done    chan struct{}
	pending sync.WaitGroup
	closing sync.Once
}

// New creates the built-in command handlers
func New(deps Deps, config Config, logger *zap.Logger) *Handlers {
	if config.BroadcastDeadline <= 0 {
		config.BroadcastDeadline = 10 * time.Second
	}
	return &Handlers{
		Deps:   deps,
		config: config,
		logger: logger.Named("handler"),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Register binds every built-in command present in the registry.
// Commands the registry does not declare are skipped.
func (h *Handlers) Register(d *usecase.Dispatcher) error {
	table := map[string]usecase.Handler{
		"help":        h.Help,
		"ping":        h.Ping,
		"stats":       h.UsageStats,
		"ask":         h.AskQuestion,
		"mute":        h.Mute,
		"unmute":      h.Unmute,
		"alias":       h.Alias,
		"unalias":     h.Unalias,
		"everyone":    h.Everyone,
		"kick":        h.Kick,
		"score":       h.Score,
		"scores":      h.Scores,
		"vote":        h.Vote,
		"event":       h.Event,
		"remind":      h.Remind,
		"rsvp":        h.RSVP,
		"events":      h.Events,
		"cancel":      h.Cancel,
		"follow":      h.Follow,
		"unfollow":    h.Unfollow,
		"subscribe":   h.Subscribe,
		"unsubscribe": h.Unsubscribe,
		"feeds":       h.ListFeeds,
		"pin":         h.Pin,
		"pinned":      h.Pinned,
		"unpin":       h.Unpin,
		"tab":         h.Tab,
		"title":       h.Title,
		"broadcast":   h.Broadcast,
	}

	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs error
	for _, id := range ids {
		if _, ok := h.Registry.Get(id); !ok {
			continue
		}
		errs = multierr.Append(errs, d.Register(id, table[id]))
	}
	return errs
}

// Close cancels delayed work and waits for running timers to return
func (h *Handlers) Close() {
	h.closing.Do(func() { close(h.done) })
	h.pending.Wait()
}

// after runs fn once d has elapsed unless the handlers are closed first
func (h *Handlers) after(d time.Duration, fn func(ctx context.Context)) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			fn(ctx)
		case <-h.done:
		}
	}()
}

// reply sends text to the conversation and remembers the message id
func (h *Handlers) reply(ctx context.Context, req *usecase.Request, text string) error {
	msgID, err := h.Platform.SendText(ctx, req.Record.ID, text)
	if err != nil {
		return err
	}
	h.rememberMessage(ctx, req.Record, msgID)
	return nil
}

func (h *Handlers) replyWithMentions(ctx context.Context, req *usecase.Request, text string, mentions []domain.Member) error {
	msgID, err := h.Platform.SendTextWithMentions(ctx, req.Record.ID, text, mentions)
	if err != nil {
		return err
	}
	h.rememberMessage(ctx, req.Record, msgID)
	return nil
}

func (h *Handlers) rememberMessage(ctx context.Context, rec *domain.ConversationRecord, msgID string) {
	if msgID == "" {
		return
	}
	h.Store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
		cur.LastBotMessageID = msgID
	})
}

// mutate applies fn through the serializer and returns what fn computed on
// the pending copy, which holds every change coalesced so far
func mutate[T any](ctx context.Context, store *usecase.UpdateSerializer, rec *domain.ConversationRecord, fn func(*domain.ConversationRecord) T) T {
	var result T
	first := true
	store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
		v := fn(cur)
		if first {
			result = v
			first = false
		}
	})
	return result
}

// privileged reports whether the sender may moderate the conversation
func (h *Handlers) privileged(req *usecase.Request) bool {
	return req.SenderID == h.config.OwnerID || req.Record.IsAdmin(req.SenderID)
}

func (h *Handlers) senderName(req *usecase.Request) string {
	return req.Record.DisplayName(req.SenderID)
}

func eventKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
