package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Bot behaviour
	Bot BotConfig

	// Storage configuration
	Store StoreConfig

	// Ticker configuration
	Ticker TickerConfig

	// Ask configuration (optional)
	Ask AskConfig

	// Admin API listen address, empty disables it
	AdminAddr string

	// Key required by the admin API routes
	AdminKey string

	// Grammar registry file, empty uses the embedded default
	GrammarsPath string

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// BotConfig contains matching and dispatch configuration
type BotConfig struct {
	Trigger       string // leading word that addresses the bot
	OwnerID       string // the only sender allowed to use sudo grammars
	Contextless   bool
	UserSeparator string
	JoinDeadline  time.Duration
}

// StoreConfig contains key-value store configuration
type StoreConfig struct {
	Backend        string // sqlite or redis
	DBPath         string
	RedisURL       string
	StatsDBPath    string
	CoalesceWindow time.Duration
}

// TickerConfig contains periodic scan configuration
type TickerConfig struct {
	Interval            time.Duration
	Lateness            time.Duration
	Concurrency         int
	AccountFeedTemplate string // e.g. https://rsshub.app/twitter/user/%s
}

// AskConfig contains the OpenAI-compatible model configuration
type AskConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir = filepath.Join(homeDir, ".threadbot")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "records.db")
	}
	statsPath := os.Getenv("STATS_DB_PATH")
	if statsPath == "" {
		statsPath = filepath.Join(dataDir, "stats.db")
	}

	backend := strings.ToLower(os.Getenv("KV_BACKEND"))
	if backend == "" {
		backend = "sqlite"
	}

	trigger := os.Getenv("BOT_TRIGGER")
	if trigger == "" {
		trigger = "bot"
	}

	separator, ok := os.LookupEnv("USER_SEPARATOR")
	if !ok || separator == "" {
		separator = " "
	}

	model := os.Getenv("ASK_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		Bot: BotConfig{
			Trigger:       strings.ToLower(trigger),
			OwnerID:       os.Getenv("OWNER_ID"),
			Contextless:   envBool("CONTEXTLESS"),
			UserSeparator: separator,
			JoinDeadline:  envMillis("JOIN_DEADLINE_MS", 5000),
		},
		Store: StoreConfig{
			Backend:        backend,
			DBPath:         dbPath,
			RedisURL:       os.Getenv("REDIS_URL"),
			StatsDBPath:    statsPath,
			CoalesceWindow: envMillis("COALESCE_WINDOW_MS", 1500),
		},
		Ticker: TickerConfig{
			Interval:            time.Duration(envInt("TICK_INTERVAL_SECONDS", 30)) * time.Second,
			Lateness:            time.Duration(envInt("LATENESS_SECONDS", 600)) * time.Second,
			Concurrency:         envInt("SCAN_CONCURRENCY", 4),
			AccountFeedTemplate: os.Getenv("ACCOUNT_FEED_TEMPLATE"),
		},
		Ask: AskConfig{
			APIKey:  os.Getenv("ASK_API_KEY"),
			BaseURL: os.Getenv("ASK_BASE_URL"),
			Model:   model,
		},
		AdminAddr:    os.Getenv("ADMIN_ADDR"),
		AdminKey:     os.Getenv("ADMIN_API_KEY"),
		GrammarsPath: os.Getenv("GRAMMARS_PATH"),
		Debug:        envBool("DEBUG"),
	}
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envMillis(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Millisecond
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

// ToMatcherConfig converts to matcher configuration
func (c *Config) ToMatcherConfig() usecase.MatcherConfig {
	return usecase.MatcherConfig{
		OwnerID:     c.Bot.OwnerID,
		Contextless: c.Bot.Contextless,
	}
}

// ToSerializerConfig converts to serializer configuration
func (c *Config) ToSerializerConfig() usecase.SerializerConfig {
	cfg := usecase.DefaultSerializerConfig()
	cfg.Window = c.Store.CoalesceWindow
	return cfg
}

// ToTickerConfig converts to ticker configuration
func (c *Config) ToTickerConfig() usecase.TickerConfig {
	return usecase.TickerConfig{
		Lateness:    c.Ticker.Lateness,
		Concurrency: c.Ticker.Concurrency,
	}
}

// ToRefresherConfig converts to refresher configuration
func (c *Config) ToRefresherConfig() usecase.RefresherConfig {
	return usecase.RefresherConfig{
		JoinDeadline: c.Bot.JoinDeadline,
		Welcome:      "Hi! Say \"" + c.Bot.Trigger + " help\" to see what I can do.",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return c.ValidateStore()
}

// ValidateStore validates only the storage settings, for tools that never
// connect to the platform
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DBPath == "" {
			return &ConfigError{Field: "DB_PATH", Message: "required for the sqlite backend"}
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return &ConfigError{Field: "REDIS_URL", Message: "required for the redis backend"}
		}
	default:
		return &ConfigError{Field: "KV_BACKEND", Message: "must be sqlite or redis"}
	}
	if c.Store.CoalesceWindow <= 0 {
		return &ConfigError{Field: "COALESCE_WINDOW_MS", Message: "must be positive"}
	}
	if c.Ticker.Interval <= 0 {
		return &ConfigError{Field: "TICK_INTERVAL_SECONDS", Message: "must be positive"}
	}
	if c.Ticker.Concurrency <= 0 {
		return &ConfigError{Field: "SCAN_CONCURRENCY", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
