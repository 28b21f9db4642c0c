package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

func TestStatsRepo(t *testing.T) {
	ctx := context.Background()
	stats, err := NewStatsRepo(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("failed to open stats: %v", err)
	}
	defer stats.Close()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	uses := []struct {
		grammar string
		offset  time.Duration
	}{
		{"ping", 0},
		{"kick", time.Minute},
		{"ping", 2 * time.Minute},
	}
	for _, u := range uses {
		err := stats.Record(ctx, &domain.UsageRecord{
			ID:             uuid.NewString(),
			GrammarID:      u.grammar,
			ConversationID: "oc_1",
			SenderID:       "ou_larry",
			UsedAt:         base.Add(u.offset),
		})
		if err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	counts := map[string]int64{"ping": 2, "kick": 1, "help": 0, repo.GlobalUsageKey: 3}
	for grammar, want := range counts {
		got, err := stats.Count(ctx, grammar)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("count(%s) = %d, want %d", grammar, got, want)
		}
	}

	recent, err := stats.Recent(ctx, "ping", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recent))
	}
	if !recent[0].UsedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("expected newest record first, got %v", recent[0].UsedAt)
	}
}
