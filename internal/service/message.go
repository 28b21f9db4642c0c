package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// MessageConfig contains inbound message configuration
type MessageConfig struct {
	Trigger        string        // leading word that addresses the bot in groups
	RefreshTimeout time.Duration // budget for the background refresh of a known conversation
}

// MessageService runs the inbound flow: bootstrap or refresh the
// conversation, strip the trigger, match, and dispatch off the receive path
type MessageService struct {
	store      *usecase.UpdateSerializer
	refresher  *usecase.Refresher
	matcher    *usecase.Matcher
	dispatcher *usecase.Dispatcher
	config     MessageConfig
	logger     *zap.Logger

	inflight sync.WaitGroup
}

// NewMessageService creates a new message service
func NewMessageService(
	store *usecase.UpdateSerializer,
	refresher *usecase.Refresher,
	matcher *usecase.Matcher,
	dispatcher *usecase.Dispatcher,
	config MessageConfig,
	logger *zap.Logger,
) *MessageService {
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 30 * time.Second
	}
	config.Trigger = strings.ToLower(strings.TrimSpace(config.Trigger))
	return &MessageService{
		store:      store,
		refresher:  refresher,
		matcher:    matcher,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.Named("service"),
	}
}

// HandleMessage processes one inbound message. It returns once the command
// is matched; handlers and the refresh of a known conversation run in the
// background.
func (s *MessageService) HandleMessage(ctx context.Context, msg *domain.InboundMessage) error {
	rec, created, err := s.refresher.Bootstrap(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if !created {
		s.refresh(ctx, rec)
	}

	command, addressed := s.command(msg)
	if !addressed {
		s.store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
			cur.LastMessage = msg.Snapshot()
		})
		return nil
	}

	matches := s.matcher.Match(ctx, rec, msg.SenderID, command)
	if len(matches) == 0 {
		s.logger.Debug("No grammar matched",
			zap.String("chat", msg.ConversationID),
			zap.String("text", truncate(command, 50)))
		return nil
	}

	// Handlers outlive the receive callback
	dctx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.dispatcher.Dispatch(dctx, matches, rec, msg); err != nil {
			s.logger.Error("Command failed",
				zap.String("chat", msg.ConversationID),
				zap.String("msg_id", msg.ID),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every background dispatch and refresh has finished
func (s *MessageService) Wait() {
	s.inflight.Wait()
}

func (s *MessageService) refresh(ctx context.Context, rec *domain.ConversationRecord) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RefreshTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.refresher.Refresh(rctx, rec); err != nil {
			s.logger.Warn("Failed to refresh conversation", zap.String("chat", rec.ID), zap.Error(err))
		}
	}()
}

// command returns the command text of a message addressed to the bot: a
// group message that starts with the trigger word or mentions the bot, or
// any direct message
func (s *MessageService) command(msg *domain.InboundMessage) (string, bool) {
	text := strings.TrimSpace(msg.Body)
	if msg.MentionsBot && strings.HasPrefix(text, "@") {
		// the bot mention is rendered as "@Name" at the front
		if i := strings.IndexAny(text, " \t\n"); i > 0 {
			text = strings.TrimSpace(text[i:])
		} else {
			text = ""
		}
	}

	if rest, ok := stripTrigger(text, s.config.Trigger); ok {
		return rest, true
	}
	if msg.MentionsBot || !msg.IsGroup {
		return text, text != ""
	}
	return "", false
}

func stripTrigger(text, trigger string) (string, bool) {
	if trigger == "" || len(text) < len(trigger) {
		return "", false
	}
	if !strings.EqualFold(text[:len(trigger)], trigger) {
		return "", false
	}
	rest := text[len(trigger):]
	if rest != "" && !strings.ContainsRune(" \t\n,:", rune(rest[0])) {
		return "", false
	}
	rest = strings.TrimLeft(rest, ",:")
	return strings.TrimSpace(rest), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
