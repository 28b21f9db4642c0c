package service

import (
	"context"
	"sync"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// Mock implementations

type memRecords struct {
	mu      sync.Mutex
	records map[string]*domain.ConversationRecord
	index   []string
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*domain.ConversationRecord)}
}

func (m *memRecords) Get(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *memRecords) Put(ctx context.Context, rec *domain.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *memRecords) Register(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = append(m.index, id)
	return nil
}

func (m *memRecords) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.index...), nil
}

type mockPlatform struct {
	mu       sync.Mutex
	sent     []string
	members  []domain.Member
	infoHits int
}

func (p *mockPlatform) SendText(ctx context.Context, chatID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return "om_bot", nil
}

func (p *mockPlatform) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error) {
	return p.SendText(ctx, chatID, text)
}

func (p *mockPlatform) AddReaction(ctx context.Context, msgID, reactionType string) error {
	return nil
}

func (p *mockPlatform) GetChatInfo(ctx context.Context, chatID string) (*repo.ChatInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infoHits++
	return &repo.ChatInfo{ChatID: chatID, Name: "Crew", IsGroup: true}, nil
}

func (p *mockPlatform) GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Member(nil), p.members...), nil
}

func (p *mockPlatform) GetMemberName(ctx context.Context, userID string) (string, error) {
	return userID, nil
}

func (p *mockPlatform) AddMember(ctx context.Context, chatID, userID string) error    { return nil }
func (p *mockPlatform) RemoveMember(ctx context.Context, chatID, userID string) error { return nil }
func (p *mockPlatform) SetTitle(ctx context.Context, chatID, title string) error      { return nil }

func (p *mockPlatform) texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *mockPlatform) infoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoHits
}
