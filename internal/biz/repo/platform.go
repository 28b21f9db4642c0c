package repo

import (
	"context"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// ChatInfo represents chat information
type ChatInfo struct {
	ChatID  string
	Name    string
	IsGroup bool
	OwnerID string
	Admins  []string
	Photo   string
}

// PlatformRepo is the narrow messaging-platform contract the bot depends on
type PlatformRepo interface {
	// SendText sends a text message and returns the new message id
	SendText(ctx context.Context, chatID, text string) (string, error)

	// SendTextWithMentions sends a text message with @ mentions
	SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error)

	// AddReaction adds an emoji reaction
	AddReaction(ctx context.Context, msgID, reactionType string) error

	// GetChatInfo gets chat information
	GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error)

	// GetChatMembers gets the list of chat members
	GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error)

	// GetMemberName looks up one member's display name
	GetMemberName(ctx context.Context, userID string) (string, error)

	// AddMember adds a member to a chat
	AddMember(ctx context.Context, chatID, userID string) error

	// RemoveMember removes a member from a chat
	RemoveMember(ctx context.Context, chatID, userID string) error

	// SetTitle renames a chat
	SetTitle(ctx context.Context, chatID, title string) error
}
