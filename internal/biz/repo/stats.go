package repo

import (
	"context"

	"github.com/threadbot/threadbot/internal/biz/domain"
)

// GlobalUsageKey is the counter incremented for every command use
const GlobalUsageKey = "__all__"

// StatsRepo stores command usage counters and the append-only usage log
type StatsRepo interface {
	// Record increments the grammar counter and the global counter and appends the record
	Record(ctx context.Context, rec *domain.UsageRecord) error

	// Count returns the counter of a grammar id (or GlobalUsageKey)
	Count(ctx context.Context, grammarID string) (int64, error)

	// Recent returns the latest usage records of a grammar, newest first
	Recent(ctx context.Context, grammarID string, limit int) ([]*domain.UsageRecord, error)

	Close() error
}
