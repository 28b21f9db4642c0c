package handler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// scoreTable maps member ids to points
type scoreTable map[string]int

func (h *Handlers) loadScores(rec *domain.ConversationRecord) scoreTable {
	scores := make(scoreTable)
	if _, err := rec.Prop(domain.PropScores, &scores); err != nil {
		h.logger.Warn("Discarding unreadable scores", zap.String("chat", rec.ID), zap.Error(err))
		return make(scoreTable)
	}
	return scores
}

// adjustScore applies fn to a member's score and returns the new value
func (h *Handlers) adjustScore(ctx context.Context, rec *domain.ConversationRecord, userID string, fn func(old int) int) int {
	return mutate(ctx, h.Store, rec, func(cur *domain.ConversationRecord) int {
		scores := h.loadScores(cur)
		scores[userID] = fn(scores[userID])
		if err := cur.SetProp(domain.PropScores, scores); err != nil {
			h.logger.Warn("Failed to store scores", zap.String("chat", cur.ID), zap.Error(err))
		}
		return scores[userID]
	})
}

// Score shows a member's score, or sets it when points are given
func (h *Handlers) Score(ctx context.Context, req *usecase.Request) error {
	userID := req.Match.MemberID
	name := req.Record.DisplayName(userID)

	points := req.Match.Args()[0]
	if points == "" {
		current, err := h.Store.Get(ctx, req.Record.ID)
		if err != nil {
			current = req.Record
		}
		return h.reply(ctx, req, fmt.Sprintf("%s has %d points.", name, h.loadScores(current)[userID]))
	}

	n, err := strconv.Atoi(points)
	if err != nil {
		return h.reply(ctx, req, fmt.Sprintf("%q is not a number.", points))
	}
	score := h.adjustScore(ctx, req.Record, userID, func(int) int { return n })
	return h.reply(ctx, req, fmt.Sprintf("%s now has %d points.", name, score))
}

// Vote adds or takes points: ++ and > add one, -- and < take one, a number adds that many
func (h *Handlers) Vote(ctx context.Context, req *usecase.Request) error {
	userID := req.Match.MemberID
	if userID == req.SenderID {
		return h.reply(ctx, req, "Nice try.")
	}

	var delta int
	switch op := req.Match.Args()[0]; op {
	case "++", ">":
		delta = 1
	case "--", "<":
		delta = -1
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(op, "+"))
		if err != nil {
			return nil
		}
		delta = n
	}

	score := h.adjustScore(ctx, req.Record, userID, func(old int) int { return old + delta })
	return h.reply(ctx, req, fmt.Sprintf("%s: %d", req.Record.DisplayName(userID), score))
}

// Scores shows the leaderboard
func (h *Handlers) Scores(ctx context.Context, req *usecase.Request) error {
	current, err := h.Store.Get(ctx, req.Record.ID)
	if err != nil {
		current = req.Record
	}
	scores := h.loadScores(current)
	if len(scores) == 0 {
		return h.reply(ctx, req, "Nobody has any points yet.")
	}

	type entry struct {
		name   string
		points int
	}
	entries := make([]entry, 0, len(scores))
	for id, points := range scores {
		entries = append(entries, entry{name: current.DisplayName(id), points: points})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].points != entries[j].points {
			return entries[i].points > entries[j].points
		}
		return entries[i].name < entries[j].name
	})

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s: %d", i+1, e.name, e.points)
	}
	return h.reply(ctx, req, b.String())
}
