package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
	"github.com/threadbot/threadbot/internal/conf"
)

const (
	testOwner = "ou_larry"
	testChat  = "oc_1"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Mock implementations

type memRecords struct {
	mu      sync.Mutex
	records map[string]*domain.ConversationRecord
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

func (m *memRecords) Register(ctx context.Context, id string) error { return nil }

func (m *memRecords) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type sent struct {
	ChatID   string
	Text     string
	Mentions []domain.Member
}

type fakePlatform struct {
	mu         sync.Mutex
	sent       []sent
	removed    []string
	added      []string
	titles     []string
	reactions  []string
	blocked    map[string]bool // chats whose sends hang until ctx is done
	failRemove error
}

func (p *fakePlatform) SendText(ctx context.Context, chatID, text string) (string, error) {
	return p.SendTextWithMentions(ctx, chatID, text, nil)
}

func (p *fakePlatform) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Member) (string, error) {
	if p.blocked[chatID] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sent{ChatID: chatID, Text: text, Mentions: mentions})
	return "om_bot", nil
}

func (p *fakePlatform) AddReaction(ctx context.Context, msgID, reactionType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, msgID+":"+reactionType)
	return nil
}

func (p *fakePlatform) GetChatInfo(ctx context.Context, chatID string) (*repo.ChatInfo, error) {
	return &repo.ChatInfo{ChatID: chatID}, nil
}

func (p *fakePlatform) GetChatMembers(ctx context.Context, chatID string) ([]domain.Member, error) {
	return nil, nil
}

func (p *fakePlatform) GetMemberName(ctx context.Context, userID string) (string, error) {
	return "", errors.New("not supported")
}

func (p *fakePlatform) AddMember(ctx context.Context, chatID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, userID)
	return nil
}

func (p *fakePlatform) RemoveMember(ctx context.Context, chatID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRemove != nil {
		return p.failRemove
	}
	p.removed = append(p.removed, userID)
	return nil
}

func (p *fakePlatform) SetTitle(ctx context.Context, chatID, title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = append(p.titles, title)
	return nil
}

func (p *fakePlatform) texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, s := range p.sent {
		out = append(out, s.Text)
	}
	return out
}

func (p *fakePlatform) last() sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return sent{}
	}
	return p.sent[len(p.sent)-1]
}

func (p *fakePlatform) addedMembers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.added...)
}

type memStats struct {
	mu     sync.Mutex
	counts map[string]int64
	log    []*domain.UsageRecord
}

func (m *memStats) Record(ctx context.Context, rec *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[rec.GrammarID]++
	m.counts[repo.GlobalUsageKey]++
	m.log = append(m.log, rec)
	return nil
}

func (m *memStats) Count(ctx context.Context, grammarID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[grammarID], nil
}

func (m *memStats) Recent(ctx context.Context, grammarID string, limit int) ([]*domain.UsageRecord, error) {
	return nil, nil
}

func (m *memStats) Close() error { return nil }

type fakeFeeds struct {
	err error
}

func (f *fakeFeeds) Fetch(ctx context.Context, url string) ([]domain.FeedItem, error) {
	return nil, f.err
}

type fakeAsk struct {
	question string
}

func (f *fakeAsk) Ask(ctx context.Context, question string) (string, error) {
	f.question = question
	return "Paris.", nil
}

// fixture wires the default grammars, matcher and dispatcher around the handlers

type fixture struct {
	records  *memRecords
	platform *fakePlatform
	stats    *memStats
	feeds    *fakeFeeds
	ask      *fakeAsk
	store    *usecase.UpdateSerializer
	matcher  *usecase.Matcher
	disp     *usecase.Dispatcher
	handlers *Handlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	categories, err := conf.ParseGrammars(conf.DefaultGrammars(), " ")
	require.NoError(t, err)
	registry, err := usecase.NewRegistry(categories)
	require.NoError(t, err)

	f := &fixture{
		records:  &memRecords{records: make(map[string]*domain.ConversationRecord)},
		platform: &fakePlatform{},
		stats:    &memStats{},
		feeds:    &fakeFeeds{},
		ask:      &fakeAsk{},
	}
	logger := zap.NewNop()
	f.store = usecase.NewUpdateSerializer(f.records, usecase.SerializerConfig{Window: time.Hour, WriteTimeout: time.Second}, logger)
	f.matcher = usecase.NewMatcher(registry, f.stats, usecase.MatcherConfig{OwnerID: testOwner}, logger)
	f.disp = usecase.NewDispatcher(registry, logger)
	f.handlers = New(Deps{
		Store:    f.store,
		Records:  f.records,
		Platform: f.platform,
		Registry: registry,
		Stats:    f.stats,
		Feeds:    f.feeds,
		Ask:      f.ask,
	}, Config{Trigger: "bot", OwnerID: testOwner, BroadcastDeadline: 100 * time.Millisecond}, logger)
	f.handlers.now = func() time.Time { return testNow }
	require.NoError(t, f.handlers.Register(f.disp))

	rec := domain.NewConversationRecord(testChat)
	rec.MergeMetadata(&domain.ChatMetadata{
		ChatID:  testChat,
		Name:    "Crew",
		IsGroup: true,
		Members: []domain.Member{
			{UserID: "ou_larry", Name: "Larry Page"},
			{UserID: "ou_alice", Name: "Alice Liddell"},
			{UserID: "ou_bob", Name: "Bob"},
		},
		Admins: []string{"ou_alice"},
	})
	f.records.records[testChat] = rec

	t.Cleanup(func() {
		f.handlers.Close()
		f.store.Flush(context.Background())
	})
	return f
}

// say runs one command the way the message service does and flushes the store
func (f *fixture) say(t *testing.T, sender, text string, attachments ...domain.Attachment) error {
	t.Helper()
	ctx := context.Background()
	rec, err := f.store.Get(ctx, testChat)
	require.NoError(t, err)

	msg := &domain.InboundMessage{
		ID:             "om_in",
		ConversationID: testChat,
		SenderID:       sender,
		Body:           text,
		Attachments:    attachments,
		IsGroup:        true,
		CreateTime:     testNow,
	}
	matches := f.matcher.Match(ctx, rec, sender, text)
	err = f.disp.Dispatch(ctx, matches, rec, msg)
	require.NoError(t, f.store.Flush(ctx))
	return err
}

func (f *fixture) record(t *testing.T) *domain.ConversationRecord {
	t.Helper()
	rec, err := f.records.Get(context.Background(), testChat)
	require.NoError(t, err)
	return rec
}
