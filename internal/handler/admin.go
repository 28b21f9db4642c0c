package handler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Title renames the conversation on the platform and in the record
func (h *Handlers) Title(ctx context.Context, req *usecase.Request) error {
	title := strings.TrimSpace(req.Match.Arg(0))
	if err := h.Platform.SetTitle(ctx, req.Record.ID, title); err != nil {
		return err
	}
	h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) { cur.Name = title })

	if req.Message != nil && req.Message.ID != "" {
		return h.Platform.AddReaction(ctx, req.Message.ID, "DONE")
	}
	return nil
}

// Broadcast sends a message to every known conversation. Sends run
// concurrently under one deadline; slow conversations are reported as missed.
func (h *Handlers) Broadcast(ctx context.Context, req *usecase.Request) error {
	text := strings.TrimSpace(req.Match.Arg(0))
	ids, err := h.Records.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	res := usecase.Join(ctx, ids, h.config.BroadcastDeadline, func(ctx context.Context, id string) (string, error) {
		return h.Platform.SendText(ctx, id, text)
	})
	if len(res.Errors) > 0 || !res.Complete() {
		h.logger.Warn("Broadcast incomplete",
			zap.Int("sent", len(res.Values)),
			zap.Int("failed", len(res.Errors)),
			zap.Strings("missing", res.Missing))
	}

	return h.reply(ctx, req, fmt.Sprintf("Sent to %d of %d conversations.", len(res.Values), len(ids)))
}
