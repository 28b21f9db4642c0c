package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Event schedules an event with an optional early reminder and repeat interval
func (h *Handlers) Event(ctx context.Context, req *usecase.Request) error {
	title := strings.TrimSpace(req.Match.Arg(0))
	now := h.now()

	at, err := domain.ParseWhen(req.Match.Arg(1), now)
	if err != nil {
		return h.reply(ctx, req, fmt.Sprintf("I don't understand that time: %v.", err))
	}
	if !at.After(now) {
		return h.reply(ctx, req, "That time has already passed.")
	}

	ev := &domain.ScheduledEvent{
		Title: title,
		Owner: req.SenderID,
		At:    at,
	}
	if s := req.Match.Arg(2); s != "" {
		before, err := domain.ParseDuration(s)
		if err != nil {
			return h.reply(ctx, req, fmt.Sprintf("Bad reminder offset: %v.", err))
		}
		ev.RemindBefore = before
		if remindAt := at.Add(-before); remindAt.After(now) {
			ev.RemindAt = remindAt
		}
	}
	if s := req.Match.Arg(3); s != "" {
		every, err := domain.ParseDuration(s)
		if err != nil {
			return h.reply(ctx, req, fmt.Sprintf("Bad repeat interval: %v.", err))
		}
		if every < time.Minute {
			return h.reply(ctx, req, "Events can repeat at most once a minute.")
		}
		ev.Every = every
	}

	h.Store.Mutate(ctx, req.Record, func(cur *domain.ConversationRecord) {
		cur.Events[eventKey(title)] = ev.Clone()
	})

	text := fmt.Sprintf("Scheduled %s for %s", title, at.Format(timeLayout))
	if ev.Every > 0 {
		text += fmt.Sprintf(", repeating every %s", ev.Every)
	}
	return h.reply(ctx, req, text+".")
}

// Remind schedules a one-off reminder addressed to a member
func (h *Handlers) Remind(ctx context.Context, req *usecase.Request) error {
	args := req.Match.Args()
	when, what := args[0], strings.TrimSpace(args[1])
	now := h.now()

	at, err := domain.ParseWhen(when, now)
	if err != nil {
		return h.reply(ctx, req, fmt.Sprintf("I don't understand that time: %v.", err))
	}
	if !at.After(now) {
		return h.reply(ctx, req, "That time has already passed.")
	}

	ev := &domain.ScheduledEvent{
		Title:    what,
		Owner:    req.Match.MemberID,
		Reminder: true,
		At:       at,
	}
	key := eventKey(what)
	added := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		if _, taken := cur.Events[key]; taken {
			return false
		}
		cur.Events[key] = ev.Clone()
		return true
	})
	if !added {
		return h.reply(ctx, req, fmt.Sprintf("There is already an event called %s.", what))
	}

	who := req.Record.DisplayName(req.Match.MemberID)
	if req.Match.MemberID == req.SenderID {
		who = "you"
	}
	return h.reply(ctx, req, fmt.Sprintf("OK, I'll remind %s at %s.", who, at.Format(timeLayout)))
}

// RSVP records whether the sender goes to an event
func (h *Handlers) RSVP(ctx context.Context, req *usecase.Request) error {
	going := strings.EqualFold(req.Match.Arg(0), "yes")
	title := req.Match.Arg(1)
	member := domain.RSVP{UserID: req.SenderID, Name: h.senderName(req)}

	found := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) bool {
		ev, ok := cur.Events[eventKey(title)]
		if !ok || ev.Reminder {
			return false
		}
		ev.SetRSVP(member, going)
		return true
	})
	if !found {
		return h.reply(ctx, req, fmt.Sprintf("There is no event called %s.", title))
	}
	if going {
		return h.reply(ctx, req, fmt.Sprintf("See you at %s, %s.", title, member.Name))
	}
	return h.reply(ctx, req, fmt.Sprintf("Noted, %s can't make %s.", member.Name, title))
}

// Events lists scheduled events and reminders in firing order
func (h *Handlers) Events(ctx context.Context, req *usecase.Request) error {
	current, err := h.Store.Get(ctx, req.Record.ID)
	if err != nil {
		current = req.Record
	}
	if len(current.Events) == 0 {
		return h.reply(ctx, req, "Nothing scheduled.")
	}

	events := make([]*domain.ScheduledEvent, 0, len(current.Events))
	for _, ev := range current.Events {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].Title < events[j].Title
	})

	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", ev.Title, ev.At.Format(timeLayout))
		if ev.Reminder {
			fmt.Fprintf(&b, " (reminder for %s)", current.DisplayName(ev.Owner))
		}
		if ev.Every > 0 {
			fmt.Fprintf(&b, " (every %s)", ev.Every)
		}
		if len(ev.Going) > 0 {
			names := make([]string, 0, len(ev.Going))
			for _, r := range ev.Going {
				names = append(names, r.Name)
			}
			fmt.Fprintf(&b, ", going: %s", strings.Join(names, ", "))
		}
	}
	return h.reply(ctx, req, b.String())
}

// Cancel deletes an event or reminder. Reminders can be cancelled by their
// owner, events by their creator or an admin.
func (h *Handlers) Cancel(ctx context.Context, req *usecase.Request) error {
	title := req.Match.Arg(0)
	privileged := h.privileged(req)

	type outcome int
	const (
		missing outcome = iota
		denied
		cancelled
	)
	res := mutate(ctx, h.Store, req.Record, func(cur *domain.ConversationRecord) outcome {
		key := eventKey(title)
		ev, ok := cur.Events[key]
		if !ok {
			return missing
		}
		if ev.Owner != req.SenderID && !privileged {
			return denied
		}
		delete(cur.Events, key)
		return cancelled
	})

	switch res {
	case missing:
		return h.reply(ctx, req, fmt.Sprintf("There is no event called %s.", title))
	case denied:
		return nil
	}
	return h.reply(ctx, req, fmt.Sprintf("Cancelled %s.", title))
}
