package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Help lists the commands by category, or describes one command
func (h *Handlers) Help(ctx context.Context, req *usecase.Request) error {
	if name := req.Match.Arg(0); name != "" {
		g, ok := h.Registry.Lookup(name)
		if !ok {
			return h.reply(ctx, req, fmt.Sprintf("No command named %q. Say \"%s help\" for the list.", name, h.config.Trigger))
		}
		return h.reply(ctx, req, describe(g.Grammar, h.config.Trigger))
	}

	var b strings.Builder
	for _, cat := range h.Registry.Categories() {
		var lines []string
		for _, g := range cat.Grammars {
			if g.Sudo && req.SenderID != h.config.OwnerID {
				continue
			}
			line := fmt.Sprintf("  %s: %s", g.Syntax, g.ShortDescription)
			if g.Experimental {
				line += " (experimental)"
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n", cat.DisplayName, strings.Join(lines, "\n"))
	}
	fmt.Fprintf(&b, "\nSay \"%s help <command>\" for details.", h.config.Trigger)
	return h.reply(ctx, req, b.String())
}

func describe(g *domain.Grammar, trigger string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", g.PrettyName, g.ShortDescription)
	if g.LongDescription != "" {
		fmt.Fprintf(&b, "%s\n", g.LongDescription)
	}
	fmt.Fprintf(&b, "Usage: %s %s", trigger, g.Syntax)
	if len(g.Examples) > 0 {
		b.WriteString("\nExamples:")
		for _, ex := range g.Examples {
			fmt.Fprintf(&b, "\n  %s %s", trigger, ex)
		}
	}
	return b.String()
}

// Ping answers pong
func (h *Handlers) Ping(ctx context.Context, req *usecase.Request) error {
	return h.reply(ctx, req, "pong")
}

// UsageStats reports how often a command, or any command, was used
func (h *Handlers) UsageStats(ctx context.Context, req *usecase.Request) error {
	if h.Stats == nil {
		return h.reply(ctx, req, "Usage statistics are not enabled.")
	}

	name := req.Match.Arg(0)
	if name == "" {
		total, err := h.Stats.Count(ctx, repo.GlobalUsageKey)
		if err != nil {
			return err
		}
		return h.reply(ctx, req, fmt.Sprintf("Commands were used %d times.", total))
	}

	g, ok := h.Registry.Lookup(name)
	if !ok {
		return h.reply(ctx, req, fmt.Sprintf("No command named %q.", name))
	}
	count, err := h.Stats.Count(ctx, g.ID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s was used %d times.", g.PrettyName, count)
	recent, err := h.Stats.Recent(ctx, g.ID, 1)
	if err == nil && len(recent) > 0 {
		text += fmt.Sprintf(" Last use: %s.", recent[0].UsedAt.Local().Format(timeLayout))
	}
	return h.reply(ctx, req, text)
}

// AskQuestion forwards a question to the language model
func (h *Handlers) AskQuestion(ctx context.Context, req *usecase.Request) error {
	if h.Ask == nil {
		return h.reply(ctx, req, "Ask is not configured.")
	}
	answer, err := h.Ask.Ask(ctx, req.Match.Arg(0))
	if err != nil {
		h.reply(ctx, req, "Sorry, I could not get an answer right now.")
		return err
	}
	return h.reply(ctx, req, answer)
}

// Mute stops feed and account notifications
func (h *Handlers) Mute(ctx context.Context, req *usecase.Request) error {
	h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) { cur.Muted = true })
	return h.reply(ctx, req, "Muted. Events and reminders still come through.")
}

// Unmute resumes feed and account notifications
func (h *Handlers) Unmute(ctx context.Context, req *usecase.Request) error {
	h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) { cur.Muted = false })
	return h.reply(ctx, req, "Unmuted.")
}
