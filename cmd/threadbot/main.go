package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/api"
	"github.com/threadbot/threadbot/internal/biz"
	"github.com/threadbot/threadbot/internal/conf"
	"github.com/threadbot/threadbot/internal/data"
	"github.com/threadbot/threadbot/internal/handler"
	"github.com/threadbot/threadbot/internal/infra/feishu"
	"github.com/threadbot/threadbot/internal/logging"
	"github.com/threadbot/threadbot/internal/server"
	"github.com/threadbot/threadbot/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Exited with error", zap.Error(err))
	}
}

func run(cfg *conf.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients and repository layer
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	repos, err := data.NewRepositories(ctx, cfg, feishuClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Warn("Failed to close stores", zap.Error(err))
		}
	}()
	logger.Info("Store opened", zap.String("backend", cfg.Store.Backend))

	categories, err := conf.LoadGrammars(cfg.GrammarsPath, cfg.Bot.UserSeparator)
	if err != nil {
		return err
	}

	// Initialize usecase layer
	uc, err := biz.NewUsecases(cfg, categories, biz.Sources{
		Records:  repos.Records,
		Stats:    repos.Stats,
		Feeds:    repos.Feeds,
		Accounts: repos.Accounts,
	}, logger)
	if err != nil {
		return err
	}

	handlers := handler.New(handler.Deps{
		Store:    uc.Store,
		Records:  repos.Records,
		Platform: uc.Session,
		Registry: uc.Registry,
		Stats:    repos.Stats,
		Feeds:    repos.Feeds,
		Ask:      repos.Ask,
	}, handler.Config{
		Trigger: cfg.Bot.Trigger,
		OwnerID: cfg.Bot.OwnerID,
	}, logger)
	if err := handlers.Register(uc.Dispatcher); err != nil {
		return err
	}
	if missing := uc.Dispatcher.Unhandled(); len(missing) > 0 {
		logger.Warn("Grammars without a handler", zap.Strings("grammars", missing))
	}
	logger.Info("Registry loaded", zap.Int("grammars", len(uc.Registry.Grammars())))

	// Initialize service layer
	messages := service.NewMessageService(uc.Store, uc.Refresher, uc.Matcher, uc.Dispatcher, service.MessageConfig{
		Trigger: cfg.Bot.Trigger,
	}, logger)
	tickerSvc := service.NewTickerService(uc.Ticker, cfg.Ticker.Interval, logger)
	tickerSvc.Start(ctx)

	var apiServer *api.Server
	if cfg.AdminAddr != "" {
		apiServer = api.NewServer(api.Deps{
			Store:    uc.Store,
			Records:  repos.Records,
			Registry: uc.Registry,
			Stats:    repos.Stats,
			Session:  uc.Session,
			Ticker:   tickerSvc,
		}, cfg.AdminAddr, cfg.AdminKey, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server error", zap.Error(err))
			}
		}()
	}

	srv := server.NewFeishuServer(feishuClient, repos.Platform, uc.Session, repos.KV, uc.Store, messages, logger)

	logger.Info("Starting threadbot", zap.String("trigger", cfg.Bot.Trigger))
	runErr := srv.Run(ctx)

	// Graceful shutdown: stop producers, then drain pending writes
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Failed to stop API server", zap.Error(err))
		}
	}
	tickerSvc.Stop()
	messages.Wait()
	handlers.Close()
	if err := uc.Store.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush pending writes", zap.Error(err))
	}
	return runErr
}
