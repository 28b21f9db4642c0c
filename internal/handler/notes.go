package handler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Pin stores a text. Without text it pins an attached image, or else the
// last message seen before the command.
func (h *Handlers) Pin(ctx context.Context, req *usecase.Request) error {
	pin := domain.Pin{
		Text:     strings.TrimSpace(req.Match.Arg(0)),
		SenderID: req.SenderID,
		PinnedAt: h.now(),
	}
	if pin.Text == "" {
		for _, a := range req.Attachments {
			if a.Kind == "image" {
				pin.Text = "image:" + a.Key
				break
			}
		}
	}
	if pin.Text == "" {
		last := req.Record.LastMessage
		if last == nil || strings.TrimSpace(last.Body) == "" {
			return h.reply(ctx, req, "There is nothing to pin.")
		}
		pin.Text = strings.TrimSpace(last.Body)
		pin.SenderID = last.SenderID
	}

	h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) {
		cur.Pinned[pin.Text] = pin
	})
	return h.reply(ctx, req, fmt.Sprintf("Pinned: %s", pin.Text))
}

// Pinned lists pins, oldest first
func (h *Handlers) Pinned(ctx context.Context, req *usecase.Request) error {
	current, err := h.Store.Get(ctx, req.Record.ID)
	if err != nil {
		current = req.Record
	}
	if len(current.Pinned) == 0 {
		return h.reply(ctx, req, "Nothing is pinned.")
	}

	pins := make([]domain.Pin, 0, len(current.Pinned))
	for _, p := range current.Pinned {
		pins = append(pins, p)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].PinnedAt.Before(pins[j].PinnedAt) })

	var b strings.Builder
	for i, p := range pins {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s (%s)", p.Text, current.DisplayName(p.SenderID))
	}
	return h.reply(ctx, req, b.String())
}

// Unpin removes a pin
func (h *Handlers) Unpin(ctx context.Context, req *usecase.Request) error {
	text := strings.TrimSpace(req.Match.Arg(0))
	removed := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, ok := cur.Pinned[text]; !ok {
			return false
		}
		delete(cur.Pinned, text)
		return true
	})
	if !removed {
		return h.reply(ctx, req, "That isn't pinned.")
	}
	return h.reply(ctx, req, "Unpinned.")
}

// Tab shows the shared tab, adds an amount to it, or resets it
func (h *Handlers) Tab(ctx context.Context, req *usecase.Request) error {
	arg := strings.ToLower(req.Match.Arg(0))

	var total float64
	switch arg {
	case "":
		current, err := h.Store.Get(ctx, req.Record.ID)
		if err != nil {
			current = req.Record
		}
		total = current.Tab
	case "reset":
		h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) { cur.Tab = 0 })
	default:
		amount, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return h.reply(ctx, req, fmt.Sprintf("%q is not an amount.", arg))
		}
		total = mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) float64 {
			cur.Tab += amount
			return cur.Tab
		})
	}
	return h.reply(ctx, req, fmt.Sprintf("Tab: %.2f", total))
}
