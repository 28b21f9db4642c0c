package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// RefresherConfig contains refresh configuration
type RefresherConfig struct {
	JoinDeadline time.Duration // soft deadline for per-member name lookups
	Welcome      string        // sent once when a conversation is first seen; empty disables
}

// Refresher pulls conversation metadata from the platform and merges it into
// the stored record
type Refresher struct {
	store      *UpdateSerializer
	recordRepo repo.RecordRepo
	platform   repo.PlatformRepo
	config     RefresherConfig
	logger     *zap.Logger

	bootstrap singleflight.Group
}

// NewRefresher creates a new refresher
func NewRefresher(store *UpdateSerializer, recordRepo repo.RecordRepo, platform repo.PlatformRepo, config RefresherConfig, logger *zap.Logger) *Refresher {
	if config.JoinDeadline <= 0 {
		config.JoinDeadline = 5 * time.Second
	}
	return &Refresher{
		store:      store,
		recordRepo: recordRepo,
		platform:   platform,
		config:     config,
		logger:     logger.Named("refresh"),
	}
}

// Metadata fetches the platform-owned fields of a conversation. Members the
// member list returned without a name are looked up individually under the
// join deadline; those still missing keep their id as name.
func (r *Refresher) Metadata(ctx context.Context, chatID string) (*domain.ChatMetadata, error) {
	info, err := r.platform.GetChatInfo(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat info: %w", err)
	}
	members, err := r.platform.GetChatMembers(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat members: %w", err)
	}

	var unnamed []string
	for _, m := range members {
		if m.Name == "" {
			unnamed = append(unnamed, m.UserID)
		}
	}
	if len(unnamed) > 0 {
		names := Join(ctx, unnamed, r.config.JoinDeadline, func(ctx context.Context, userID string) (string, error) {
			return r.platform.GetMemberName(ctx, userID)
		})
		if !names.Complete() || len(names.Errors) > 0 {
			r.logger.Debug("Member names incomplete",
				zap.String("chat", chatID),
				zap.Strings("missing", names.Missing),
				zap.Int("failed", len(names.Errors)))
		}
		for i := range members {
			if members[i].Name != "" {
				continue
			}
			if name := names.Values[members[i].UserID]; name != "" {
				members[i].Name = name
			} else {
				members[i].Name = members[i].UserID
			}
		}
	}

	admins := append([]string(nil), info.Admins...)
	if info.OwnerID != "" && !contains(admins, info.OwnerID) {
		admins = append([]string{info.OwnerID}, admins...)
	}

	return &domain.ChatMetadata{
		ChatID:  chatID,
		Name:    info.Name,
		IsGroup: info.IsGroup,
		Members: members,
		Admins:  admins,
		Photo:   info.Photo,
	}, nil
}

// Refresh merges fresh metadata into rec through the serializer
func (r *Refresher) Refresh(ctx context.Context, rec *domain.ConversationRecord) error {
	meta, err := r.Metadata(ctx, rec.ID)
	if err != nil {
		return err
	}
	r.store.Mutate(ctx, rec, func(cur *domain.ConversationRecord) {
		cur.MergeMetadata(meta)
	})
	return nil
}

// Bootstrap returns the record of a conversation, creating it on first sight.
// Concurrent calls for the same id share one creation and all of them see
// created as true.
func (r *Refresher) Bootstrap(ctx context.Context, chatID string) (rec *domain.ConversationRecord, created bool, err error) {
	type outcome struct {
		rec     *domain.ConversationRecord
		created bool
	}

	v, err, _ := r.bootstrap.Do(chatID, func() (any, error) {
		existing, err := r.store.Get(ctx, chatID)
		if err == nil {
			return outcome{rec: existing}, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}

		rec := domain.NewConversationRecord(chatID)
		if meta, err := r.Metadata(ctx, chatID); err != nil {
			r.logger.Warn("Bootstrap without metadata", zap.String("chat", chatID), zap.Error(err))
		} else {
			rec.MergeMetadata(meta)
		}

		// a stored record must already be indexed
		if err := r.recordRepo.Register(ctx, chatID); err != nil {
			return nil, fmt.Errorf("failed to index conversation: %w", err)
		}
		if err := r.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to store new conversation: %w", err)
		}
		r.logger.Info("Conversation created", zap.String("chat", chatID), zap.Int("members", len(rec.Members)))

		if r.config.Welcome != "" {
			if _, err := r.platform.SendText(ctx, chatID, r.config.Welcome); err != nil {
				r.logger.Warn("Failed to send welcome", zap.String("chat", chatID), zap.Error(err))
			}
		}
		return outcome{rec: rec, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	out := v.(outcome)
	return out.rec.Clone(), out.created, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
