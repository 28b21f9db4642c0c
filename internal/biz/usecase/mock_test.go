package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// Mock implementations

type mockRecordRepo struct {
	mu      sync.Mutex
	records map[string]*domain.ConversationRecord
	index   []string
	puts    int
	delay   time.Duration
	failPut error

	failGet      map[string]error
	failRegister error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[string]*domain.ConversationRecord)}
}

func (m *mockRecordRepo) Get(ctx context.Context, id string) (*domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failGet[id]; err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *mockRecordRepo) Put(ctx context.Context, rec *domain.ConversationRecord) error {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPut != nil {
		return m.failPut
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *mockRecordRepo) Register(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRegister != nil {
		return m.failRegister
	}
	for _, v := range m.index {
		if v == id {
			return nil
		}
	}
	m.index = append(m.index, id)
	return nil
}

func (m *mockRecordRepo) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.index...)
	sort.Strings(out)
	return out, nil
}

func (m *mockRecordRepo) stored(id string) *domain.ConversationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Clone()
}

func (m *mockRecordRepo) setFailRegister(err error) {
	m.mu.Lock()
	m.failRegister = err
	m.mu.Unlock()
}

func (m *mockRecordRepo) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *mockRecordRepo) seed(rec *domain.ConversationRecord) {
	m.mu.Lock()
	m.records[rec.ID] = rec.Clone()
	m.index = append(m.index, rec.ID)
	m.mu.Unlock()
}

type sentMessage struct {
	ChatID   string
	Text     string
	Mentions []domain.Member
}

type mockPlatform struct {
	mu       sync.Mutex
	sent     []sentMessage
	info     *repo.ChatInfo
	members  []domain.Member
	names    map[string]string
	nameWait time.Duration
	failSend bool
}

func (m *mockPlatform) SendText(ctx context.Context, chatID, text string) (string, error) {
	return m.SendTextWithMentions(ctx, chatID, text, nil)
}

func (m *mockPlatform) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return "", errors.New("send failed")
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Mentions: mentions})
	return "om_" + text, nil
}

func (m *mockPlatform) AddReaction(ctx context.Context, msgID, reactionType string) error {
	return nil
}

func (m *mockPlatform) GetChatInfo(ctx context.Context, chatID string) (*repo.ChatInfo, error) {
	if m.info == nil {
		return &repo.ChatInfo{ChatID: chatID, Name: "chat", IsGroup: true}, nil
	}
	info := *m.info
	return &info, nil
}

func (m *mockPlatform) GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error) {
	return append([]domain.Member(nil), m.members...), nil
}

func (m *mockPlatform) GetMemberName(ctx context.Context, userID string) (string, error) {
	if m.nameWait > 0 {
		select {
		case <-time.After(m.nameWait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	name, ok := m.names[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

func (m *mockPlatform) AddMember(ctx context.Context, chatID, userID string) error    { return nil }
func (m *mockPlatform) RemoveMember(ctx context.Context, chatID, userID string) error { return nil }
func (m *mockPlatform) SetTitle(ctx context.Context, chatID, title string) error      { return nil }

func (m *mockPlatform) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockStatsRepo struct {
	mu      sync.Mutex
	records []*domain.UsageRecord
	counts  map[string]int64
}

func (m *mockStatsRepo) Record(ctx context.Context, rec *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[rec.GrammarID]++
	m.counts[repo.GlobalUsageKey]++
	m.records = append(m.records, rec)
	return nil
}

func (m *mockStatsRepo) Count(ctx context.Context, grammarID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[grammarID], nil
}

func (m *mockStatsRepo) Recent(ctx context.Context, grammarID string, limit int) ([]*domain.UsageRecord, error) {
	return nil, nil
}

func (m *mockStatsRepo) Close() error { return nil }

type mockFeedSource struct {
	items   map[string][]domain.FeedItem
	err     error
	onFetch func() // runs before each fetch returns
}

func (m *mockFeedSource) Fetch(ctx context.Context, url string) ([]domain.FeedItem, error) {
	if m.onFetch != nil {
		m.onFetch()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.items[url], nil
}

type mockAccountSource struct {
	latest map[string]*domain.FeedItem
}

func (m *mockAccountSource) Latest(ctx context.Context, handle string) (*domain.FeedItem, error) {
	item, ok := m.latest[handle]
	if !ok {
		return nil, errors.New("no such account")
	}
	return item, nil
}

func testRecord(id string) *domain.ConversationRecord {
	rec := domain.NewConversationRecord(id)
	rec.MergeMetadata(&domain.ChatMetadata{
		ChatID:  id,
		Name:    "Crew",
		IsGroup: true,
		Members: []domain.Member{
			{UserID: "ou_larry", Name: "Larry Page"},
			{UserID: "ou_alice", Name: "Alice Liddell"},
			{UserID: "ou_bob", Name: "Bob"},
		},
	})
	return rec
}
