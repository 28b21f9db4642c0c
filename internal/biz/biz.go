package biz

import (
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
	"github.com/threadbot/threadbot/internal/conf"
)

// Usecases contains all usecases
type Usecases struct {
	Session    *usecase.Session
	Registry   *usecase.Registry
	Store      *usecase.UpdateSerializer
	Matcher    *usecase.Matcher
	Dispatcher *usecase.Dispatcher
	Refresher  *usecase.Refresher
	Ticker     *usecase.Ticker
}

// Sources are the repositories the usecases read and write
type Sources struct {
	Records  repo.RecordRepo
	Stats    repo.StatsRepo
	Feeds    repo.FeedSource
	Accounts repo.AccountSource
}

// NewUsecases wires the usecase layer. Everything that talks to the
// platform goes through Session, which starts disconnected.
func NewUsecases(cfg *conf.Config, categories []*domain.Category, src Sources, logger *zap.Logger) (*Usecases, error) {
	registry, err := usecase.NewRegistry(categories)
	if err != nil {
		return nil, err
	}

	session := usecase.NewSession(nil)
	store := usecase.NewUpdateSerializer(src.Records, cfg.ToSerializerConfig(), logger)
	return &Usecases{
		Session:    session,
		Registry:   registry,
		Store:      store,
		Matcher:    usecase.NewMatcher(registry, src.Stats, cfg.ToMatcherConfig(), logger),
		Dispatcher: usecase.NewDispatcher(registry, logger),
		Refresher:  usecase.NewRefresher(store, src.Records, session, cfg.ToRefresherConfig(), logger),
		Ticker:     usecase.NewTicker(store, src.Records, session, src.Feeds, src.Accounts, cfg.ToTickerConfig(), logger),
	}, nil
}
