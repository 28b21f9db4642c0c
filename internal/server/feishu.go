package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
	"github.com/threadbot/threadbot/internal/infra/feishu"
)

const (
	seenTTL        = 5 * time.Minute
	reconnectDelay = 5 * time.Second
	maxReconnect   = 2 * time.Minute
)

// Connection is the inbound side of the Feishu client
type Connection interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Identify(ctx context.Context) (string, error)
	UseIdentity(openID string)
}

// MessageHandler processes converted inbound messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *domain.InboundMessage) error
}

// FeishuServer receives Feishu events, drops redeliveries, and hands each
// message to the message service. It owns the platform session: the session
// holder points at the platform while the connection is up.
type FeishuServer struct {
	conn     Connection
	platform repo.PlatformRepo
	session  *usecase.Session
	kv       repo.KVStore
	store    *usecase.UpdateSerializer
	messages MessageHandler
	logger   *zap.Logger

	ctx context.Context

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> first seen
	now        func() time.Time
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(
	conn Connection,
	platform repo.PlatformRepo,
	session *usecase.Session,
	kv repo.KVStore,
	store *usecase.UpdateSerializer,
	messages MessageHandler,
	logger *zap.Logger,
) *FeishuServer {
	return &FeishuServer{
		conn:     conn,
		platform: platform,
		session:  session,
		kv:       kv,
		store:    store,
		messages: messages,
		logger:   logger.Named("server"),
		ctx:      context.Background(),
		seenMsgs: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run connects and reconnects until ctx is cancelled
func (s *FeishuServer) Run(ctx context.Context) error {
	s.ctx = ctx
	s.conn.OnMessage(s.handleMessage)
	s.identify(ctx)

	delay := reconnectDelay
	for {
		s.session.Swap(s.platform)
		started := s.now()
		err := s.conn.Start(ctx)
		s.session.Swap(nil)

		if ctx.Err() != nil {
			return nil
		}
		if s.now().Sub(started) > maxReconnect {
			delay = reconnectDelay
		}
		s.logger.Warn("Connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay),
			zap.Int64("generation", s.session.Generation()))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnect)
	}
}

// identify resolves the bot identity, falling back to the one stored by the
// previous session, and stores the fresh one
func (s *FeishuServer) identify(ctx context.Context) {
	var stored string
	if data, err := s.kv.Get(ctx, repo.SessionIdentityKey); err == nil {
		stored = string(data)
	} else if !errors.Is(err, repo.ErrNotFound) {
		s.logger.Warn("Failed to read session identity", zap.Error(err))
	}

	openID, err := s.conn.Identify(ctx)
	if err != nil {
		if stored == "" {
			s.logger.Warn("Bot identity unknown, mentions will not address the bot", zap.Error(err))
			return
		}
		s.logger.Warn("Using stored bot identity", zap.String("open_id", stored), zap.Error(err))
		s.conn.UseIdentity(stored)
		return
	}

	if openID != stored {
		if err := s.kv.Set(ctx, repo.SessionIdentityKey, []byte(openID)); err != nil {
			s.logger.Warn("Failed to store session identity", zap.Error(err))
		}
	}
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if s.isMessageSeen(msg.MsgID) {
		s.logger.Debug("Duplicate message ignored", zap.String("msg_id", msg.MsgID))
		return
	}

	in := &domain.InboundMessage{
		ID:             msg.MsgID,
		ConversationID: msg.ChatID,
		SenderID:       msg.SenderID,
		Body:           msg.Content,
		MentionsBot:    msg.MentionsBot,
		IsGroup:        msg.ChatType != "p2p",
		CreateTime:     msg.CreateTime,
	}
	for _, a := range msg.Attachments {
		in.Attachments = append(in.Attachments, domain.Attachment{Kind: a.Kind, Key: a.Key})
	}
	if rec, err := s.store.Get(s.ctx, msg.ChatID); err == nil {
		in.SenderName = rec.Names[msg.SenderID]
	}

	s.logger.Debug("Received message",
		zap.String("chat_id", in.ConversationID),
		zap.String("sender", in.SenderID),
		zap.String("text", truncate(in.Body, 50)))

	if err := s.messages.HandleMessage(s.ctx, in); err != nil {
		s.logger.Error("Failed to handle message",
			zap.String("chat_id", in.ConversationID),
			zap.String("msg_id", in.ID),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isMessageSeen reports whether a message was already delivered, marking it
// seen otherwise. Entries older than seenTTL are dropped.
func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	if ts, ok := s.seenMsgs[msgID]; ok && now.Sub(ts) < seenTTL {
		return true
	}
	s.seenMsgs[msgID] = now

	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return false
}
