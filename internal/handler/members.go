package handler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// maxKickSeconds bounds how long a kicked member waits to be added back
const maxKickSeconds = 24 * 60 * 60

// Alias gives a member another matchable name
func (h *Handlers) Alias(ctx context.Context, req *usecase.Request) error {
	alias := req.Match.Args()[0]
	canonical := req.Match.MemberKey

	err := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) error {
		return cur.SetAlias(alias, canonical)
	})
	if err != nil {
		return h.reply(ctx, req, fmt.Sprintf("Can't do that: %v.", err))
	}
	return h.reply(ctx, req, fmt.Sprintf("OK, %s is now also %s.", req.Record.DisplayName(req.Match.MemberID), alias))
}

// Unalias removes an alias
func (h *Handlers) Unalias(ctx context.Context, req *usecase.Request) error {
	alias := req.Match.Arg(0)
	removed := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		return cur.ClearAlias(alias)
	})
	if !removed {
		return h.reply(ctx, req, fmt.Sprintf("There is no alias %q.", alias))
	}
	return h.reply(ctx, req, fmt.Sprintf("Removed alias %s.", alias))
}

// Everyone mentions every member except the sender
func (h *Handlers) Everyone(ctx context.Context, req *usecase.Request) error {
	rec := req.Record
	mentions := make([]domain.Member, 0, len(rec.Members))
	for _, id := range rec.Members {
		if id == req.SenderID {
			continue
		}
		mentions = append(mentions, domain.Member{UserID: id, Name: rec.DisplayName(id)})
	}
	if len(mentions) == 0 {
		return nil
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].Name < mentions[j].Name })

	text := req.Match.Arg(0)
	if text == "" {
		text = fmt.Sprintf("%s is calling everyone", h.senderName(req))
	}
	return h.replyWithMentions(ctx, req, text, mentions)
}

// Kick removes a member; with a number of seconds the member is added back
// after that delay. Only admins and the owner may kick.
func (h *Handlers) Kick(ctx context.Context, req *usecase.Request) error {
	if !h.privileged(req) {
		return nil
	}

	chatID := req.Record.ID
	userID := req.Match.MemberID
	name := req.Record.DisplayName(userID)

	var delay time.Duration
	if s := req.Match.Args()[0]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n > maxKickSeconds {
			return h.reply(ctx, req, fmt.Sprintf("Pick a number of seconds up to %d.", maxKickSeconds))
		}
		delay = time.Duration(n) * time.Second
	}

	if err := h.Platform.RemoveMember(ctx, chatID, userID); err != nil {
		return multierr.Append(
			fmt.Errorf("failed to remove %s: %w", userID, err),
			h.reply(ctx, req, fmt.Sprintf("Could not remove %s.", name)))
	}
	if delay <= 0 {
		return h.reply(ctx, req, fmt.Sprintf("Bye %s!", name))
	}

	h.after(delay, func(ctx context.Context) {
		if err := h.Platform.AddMember(ctx, chatID, userID); err != nil {
			h.logger.Warn("Failed to add kicked member back",
				zap.String("chat", chatID),
				zap.String("user", userID),
				zap.Error(err))
		}
	})
	return h.reply(ctx, req, fmt.Sprintf("Bye %s, see you in %s!", name, delay))
}
