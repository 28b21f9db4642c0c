package data

import (
	"context"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/infra/feishu"
)

// feishuAPI is the part of the Feishu client the platform repository uses
type feishuAPI interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
	SendTextWithMentions(ctx context.Context, chatID, text string, mentions []feishu.Mention) (string, error)
	AddReaction(ctx context.Context, messageID, emojiType string) error
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	GetUserName(ctx context.Context, openID string) (string, error)
	AddChatMembers(ctx context.Context, chatID string, openIDs ...string) error
	RemoveChatMembers(ctx context.Context, chatID string, openIDs ...string) error
	UpdateChatName(ctx context.Context, chatID, name string) error
}

// feishuRepo implements the platform repository on Feishu
type feishuRepo struct {
	client feishuAPI
}

// NewFeishuRepo creates a new Feishu platform repository
func NewFeishuRepo(client *feishu.Client) repo.PlatformRepo {
	return &feishuRepo{client: client}
}

// SendText sends a text message
func (r *feishuRepo) SendText(ctx context.Context, chatID, text string) (string, error) {
	return r.client.SendText(ctx, chatID, text)
}

// SendTextWithMentions sends a text message with @ mentions
func (r *feishuRepo) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error) {
	feishuMentions := make([]feishu.Mention, 0, len(mentions))
	for _, m := range mentions {
		feishuMentions = append(feishuMentions, feishu.Mention{UserID: m.UserID, UserName: m.Name})
	}
	return r.client.SendTextWithMentions(ctx, chatID, text, feishuMentions)
}

// AddReaction adds an emoji reaction
func (r *feishuRepo) AddReaction(ctx context.Context, msgID, reactionType string) error {
	return r.client.AddReaction(ctx, msgID, reactionType)
}

// GetChatInfo gets chat info. Group managers are reported as admins.
func (r *feishuRepo) GetChatInfo(ctx context.Context, chatID string) (*repo.ChatInfo, error) {
	info, err := r.client.GetChatInfo(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &repo.ChatInfo{
		ChatID:  chatID,
		Name:    info.Name,
		IsGroup: info.ChatMode != "p2p",
		OwnerID: info.OwnerID,
		Admins:  append([]string(nil), info.Managers...),
		Photo:   info.Avatar,
	}, nil
}

// GetChatMembers gets chat member list
func (r *feishuRepo) GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error) {
	members, err := r.client.GetChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Member, 0, len(members))
	for _, m := range members {
		if m.MemberID == "" {
			continue
		}
		result = append(result, domain.Member{UserID: m.MemberID, Name: m.Name})
	}
	return result, nil
}

// GetMemberName looks up one user's display name
func (r *feishuRepo) GetMemberName(ctx context.Context, userID string) (string, error) {
	return r.client.GetUserName(ctx, userID)
}

// AddMember adds a member to a chat
func (r *feishuRepo) AddMember(ctx context.Context, chatID, userID string) error {
	return r.client.AddChatMembers(ctx, chatID, userID)
}

// RemoveMember removes a member from a chat
func (r *feishuRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	return r.client.RemoveChatMembers(ctx, chatID, userID)
}

// SetTitle renames a chat
func (r *feishuRepo) SetTitle(ctx context.Context, chatID, title string) error {
	return r.client.UpdateChatName(ctx, chatID, title)
}
