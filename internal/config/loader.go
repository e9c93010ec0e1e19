package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// PRICEWATCH_NOTIFY_SLACK_WEBHOOK.
const EnvPrefix = "PRICEWATCH"

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pricewatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".pricewatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The catalog is replaced wholesale, never merged element-wise with the
	// default products.
	cfg.Catalog = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = DefaultCatalog()
	}

	return cfg, nil
}

// setDefaults registers default values in viper so that env overrides
// apply to keys absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.load_timeout", cfg.Fetcher.LoadTimeout)
	v.SetDefault("fetcher.ready_selector", cfg.Fetcher.ReadySelector)
	v.SetDefault("fetcher.snapshot_dir", cfg.Fetcher.SnapshotDir)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)
	v.SetDefault("fetcher.browser_bin", cfg.Fetcher.BrowserBin)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)

	setRuleDefaults(v, "parser.price", cfg.Parser.Price)
	setRuleDefaults(v, "parser.discount", cfg.Parser.Discount)
	setRuleDefaults(v, "parser.rating", cfg.Parser.Rating)
	setRuleDefaults(v, "parser.reviews_link", cfg.Parser.ReviewsLink)
	setRuleDefaults(v, "parser.review", cfg.Parser.Review)

	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("storage.observation_file", cfg.Storage.ObservationFile)
	v.SetDefault("storage.review_file", cfg.Storage.ReviewFile)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.postgres.enabled", cfg.Storage.Postgres.Enabled)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)
	v.SetDefault("storage.postgres.max_conns", cfg.Storage.Postgres.MaxConns)
	v.SetDefault("storage.redis.enabled", cfg.Storage.Redis.Enabled)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.ttl", cfg.Storage.Redis.TTL)
	v.SetDefault("storage.redis.prefix", cfg.Storage.Redis.Prefix)

	v.SetDefault("forecast.horizon", cfg.Forecast.Horizon)
	v.SetDefault("forecast.order", cfg.Forecast.Order)

	v.SetDefault("sentiment.provider", cfg.Sentiment.Provider)
	v.SetDefault("sentiment.max_length", cfg.Sentiment.MaxLength)
	v.SetDefault("sentiment.endpoint", cfg.Sentiment.Endpoint)
	v.SetDefault("sentiment.api_key", cfg.Sentiment.APIKey)

	v.SetDefault("ai.provider", cfg.AI.Provider)
	v.SetDefault("ai.model", cfg.AI.Model)
	v.SetDefault("ai.endpoint", cfg.AI.Endpoint)
	v.SetDefault("ai.api_key", cfg.AI.APIKey)
	v.SetDefault("ai.temperature", cfg.AI.Temperature)
	v.SetDefault("ai.timeout", cfg.AI.Timeout)

	v.SetDefault("notify.slack_webhook", cfg.Notify.SlackWebhook)
	v.SetDefault("notify.telegram_token", cfg.Notify.TelegramToken)
	v.SetDefault("notify.telegram_chat_id", cfg.Notify.TelegramChatID)
	v.SetDefault("notify.telegram_api", cfg.Notify.TelegramAPI)
	v.SetDefault("notify.timeout", cfg.Notify.Timeout)

	v.SetDefault("monitor.interval", cfg.Monitor.Interval)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

func setRuleDefaults(v *viper.Viper, key string, r ParseRule) {
	v.SetDefault(key+".selector", r.Selector)
	v.SetDefault(key+".type", r.Type)
	v.SetDefault(key+".attribute", r.Attribute)
}
