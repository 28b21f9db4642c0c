package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

func newTestRefresher(records *mockRecordRepo, platform *mockPlatform, deadline time.Duration) (*Refresher, *UpdateSerializer) {
	store := newTestSerializer(records, time.Hour)
	r := NewRefresher(store, records, platform, RefresherConfig{JoinDeadline: deadline, Welcome: "hello"}, zap.NewNop())
	return r, store
}

func TestMetadata_FillsMissingNames(t *testing.T) {
	platform := &mockPlatform{
		info: &repo.ChatInfo{Name: "Crew", IsGroup: true, OwnerID: "ou_larry", Admins: []string{"ou_alice"}},
		members: []domain.Member{
			{UserID: "ou_larry", Name: "Larry"},
			{UserID: "ou_alice"},
			{UserID: "ou_ghost"},
		},
		names: map[string]string{"ou_alice": "Alice"},
	}
	r, _ := newTestRefresher(newMockRecordRepo(), platform, time.Second)

	meta, err := r.Metadata(context.Background(), "oc_1")
	require.NoError(t, err)
	assert.Equal(t, "Crew", meta.Name)
	assert.Equal(t, []string{"ou_larry", "ou_alice"}, meta.Admins)
	assert.Equal(t, []domain.Member{
		{UserID: "ou_larry", Name: "Larry"},
		{UserID: "ou_alice", Name: "Alice"},
		{UserID: "ou_ghost", Name: "ou_ghost"},
	}, meta.Members)
}

func TestMetadata_NameLookupDeadline(t *testing.T) {
	platform := &mockPlatform{
		members:  []domain.Member{{UserID: "ou_slow"}},
		names:    map[string]string{"ou_slow": "Slow"},
		nameWait: time.Second,
	}
	r, _ := newTestRefresher(newMockRecordRepo(), platform, 20*time.Millisecond)

	start := time.Now()
	meta, err := r.Metadata(context.Background(), "oc_1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "ou_slow", meta.Members[0].Name)
}

func TestBootstrap_ConcurrentDuplicatesCreateOnce(t *testing.T) {
	records := newMockRecordRepo()
	records.delay = 20 * time.Millisecond
	platform := &mockPlatform{members: []domain.Member{{UserID: "ou_larry", Name: "Larry"}}}
	r, store := newTestRefresher(records, platform, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _, err := r.Bootstrap(context.Background(), "oc_new")
			assert.NoError(t, err)
			assert.Equal(t, "ou_larry", rec.Members["larry"])
		}()
	}
	wg.Wait()
	require.NoError(t, store.Flush(context.Background()))

	assert.Equal(t, 1, records.putCount())
	assert.Len(t, platform.messages(), 1)
	ids, _ := records.List(context.Background())
	assert.Equal(t, []string{"oc_new"}, ids)

	stored := records.stored("oc_new")
	assert.True(t, stored.Muted)

	// a later bootstrap finds the record
	_, created, err := r.Bootstrap(context.Background(), "oc_new")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, platform.messages(), 1)
}

func TestRefresh_PreservesBotFields(t *testing.T) {
	records := newMockRecordRepo()
	rec := testRecord("oc_1")
	rec.Muted = false
	rec.Pinned["wifi"] = domain.Pin{Text: "hunter2"}
	require.NoError(t, rec.SetAlias("lars", "larry"))
	records.seed(rec)

	platform := &mockPlatform{
		info:    &repo.ChatInfo{Name: "Renamed", IsGroup: true},
		members: []domain.Member{{UserID: "ou_larry", Name: "Larry Page"}, {UserID: "ou_dan", Name: "Dan"}},
	}
	r, store := newTestRefresher(records, platform, time.Second)

	require.NoError(t, r.Refresh(context.Background(), rec))
	require.NoError(t, store.Flush(context.Background()))

	stored := records.stored("oc_1")
	assert.Equal(t, "Renamed", stored.Name)
	assert.False(t, stored.Muted)
	assert.Equal(t, "hunter2", stored.Pinned["wifi"].Text)
	assert.Equal(t, "larry", stored.Aliases["lars"])
	assert.Equal(t, "ou_dan", stored.Members["dan"])
	assert.NotContains(t, stored.Members, "alice")
}

func TestRefresh_KeepsWritesCompletedSinceArrival(t *testing.T) {
	ctx := context.Background()
	records := newMockRecordRepo()
	records.seed(testRecord("oc_1"))
	platform := &mockPlatform{
		info:    &repo.ChatInfo{Name: "Renamed", IsGroup: true},
		members: []domain.Member{{UserID: "ou_larry", Name: "Larry Page"}},
	}
	r, store := newTestRefresher(records, platform, time.Second)

	arrival, err := store.Get(ctx, "oc_1")
	require.NoError(t, err)
	require.True(t, arrival.Muted)

	// a command unmutes and its write lands before the refresh finishes
	cur, err := store.Get(ctx, "oc_1")
	require.NoError(t, err)
	store.Mutate(ctx, cur, func(c *domain.ConversationRecord) { c.Muted = false })
	require.NoError(t, store.Flush(ctx))

	require.NoError(t, r.Refresh(ctx, arrival))
	require.NoError(t, store.Flush(ctx))

	stored := records.stored("oc_1")
	assert.False(t, stored.Muted)
	assert.Equal(t, "Renamed", stored.Name)
}

func TestBootstrap_IndexFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	records := newMockRecordRepo()
	records.setFailRegister(errors.New("index unavailable"))
	platform := &mockPlatform{}
	r, _ := newTestRefresher(records, platform, time.Second)

	_, _, err := r.Bootstrap(ctx, "oc_new")
	require.Error(t, err)
	_, err = records.Get(ctx, "oc_new")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	assert.Empty(t, platform.messages())

	records.setFailRegister(nil)
	_, created, err := r.Bootstrap(ctx, "oc_new")
	require.NoError(t, err)
	assert.True(t, created)

	ids, err := records.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"oc_new"}, ids)
	assert.Len(t, platform.messages(), 1)
}
