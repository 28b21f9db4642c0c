package data

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/conf"
	"github.com/threadbot/threadbot/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	KV       repo.KVStore
	Records  repo.RecordRepo
	Stats    repo.StatsRepo
	Platform repo.PlatformRepo
	Feeds    repo.FeedSource
	Accounts repo.AccountSource // nil when no account feed template is set
	Ask      repo.AskRepo       // nil when no API key is set
}

// NewKVStore opens the configured key-value backend
func NewKVStore(ctx context.Context, cfg conf.StoreConfig) (repo.KVStore, error) {
	switch cfg.Backend {
	case "redis":
		return NewRedisKV(ctx, cfg.RedisURL)
	case "sqlite", "":
		return NewSQLiteKV(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewRepositories creates all repositories. feishuClient may be nil for
// tools that never talk to the platform.
func NewRepositories(ctx context.Context, cfg *conf.Config, feishuClient *feishu.Client) (*Repositories, error) {
	kv, err := NewKVStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	stats, err := NewStatsRepo(cfg.Store.StatsDBPath)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to open stats: %w", err)
	}

	feeds := NewFeedSource()
	repos := &Repositories{
		KV:       kv,
		Records:  NewRecordRepo(kv),
		Stats:    stats,
		Feeds:    feeds,
		Accounts: NewAccountSource(feeds, cfg.Ticker.AccountFeedTemplate),
		Ask:      NewAskRepo(cfg.Ask.APIKey, cfg.Ask.BaseURL, cfg.Ask.Model),
	}
	if feishuClient != nil {
		repos.Platform = NewFeishuRepo(feishuClient)
	}
	return repos, nil
}

// Close releases the stores
func (r *Repositories) Close() error {
	return multierr.Combine(r.Stats.Close(), r.KV.Close())
}
