package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

var catalogValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 64 {
		return fmt.Errorf("engine.concurrency must be <= 64, got %d", cfg.Engine.Concurrency)
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryDelay < 0 {
		return fmt.Errorf("fetcher.retry_delay must be >= 0")
	}
	if cfg.Fetcher.LoadTimeout <= 0 {
		return fmt.Errorf("fetcher.load_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}

	rules := map[string]ParseRule{
		"parser.price":        cfg.Parser.Price,
		"parser.discount":     cfg.Parser.Discount,
		"parser.rating":       cfg.Parser.Rating,
		"parser.reviews_link": cfg.Parser.ReviewsLink,
		"parser.review":       cfg.Parser.Review,
	}
	for key, rule := range rules {
		if rule.Selector == "" {
			return fmt.Errorf("%s.selector must not be empty", key)
		}
		if rule.Type != "css" && rule.Type != "xpath" {
			return fmt.Errorf("%s.type must be 'css' or 'xpath', got %q", key, rule.Type)
		}
	}

	if cfg.Storage.ObservationFile == "" || cfg.Storage.ReviewFile == "" {
		return fmt.Errorf("storage.observation_file and storage.review_file are required")
	}
	if cfg.Storage.Mongo.Enabled && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri is required when mongo is enabled")
	}
	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when postgres is enabled")
	}
	if cfg.Storage.Redis.Enabled && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required when redis is enabled")
	}

	if cfg.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be >= 1, got %d", cfg.Forecast.Horizon)
	}
	if cfg.Forecast.Order < 0 {
		return fmt.Errorf("forecast.order must be >= 0, got %d", cfg.Forecast.Order)
	}

	switch cfg.Sentiment.Provider {
	case "llm":
	case "http":
		if cfg.Sentiment.Endpoint == "" {
			return fmt.Errorf("sentiment.endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("sentiment.provider must be 'llm' or 'http', got %q", cfg.Sentiment.Provider)
	}

	if cfg.AI.Provider != "openai" && cfg.AI.Provider != "ollama" {
		return fmt.Errorf("ai.provider must be 'openai' or 'ollama', got %q", cfg.AI.Provider)
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model must not be empty")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be within [0, 2], got %v", cfg.AI.Temperature)
	}

	if cfg.Notify.SlackWebhook != "" {
		if err := ValidateURL(cfg.Notify.SlackWebhook); err != nil {
			return fmt.Errorf("notify.slack_webhook: %w", err)
		}
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID == "" {
		return fmt.Errorf("notify.telegram_chat_id is required with a telegram token")
	}

	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be > 0")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return ValidateCatalog(cfg.Catalog)
}

// ValidateCatalog checks every catalog entry and rejects duplicate names.
func ValidateCatalog(entries []CatalogEntry) error {
	if len(entries) == 0 {
		return errors.New("catalog must contain at least one product")
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := catalogValidator.Struct(e); err != nil {
			return fmt.Errorf("catalog[%d] %q: %w", i, e.Name, err)
		}
		if seen[e.Name] {
			return fmt.Errorf("catalog[%d]: duplicate product name %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// ValidateURL checks if a URL string is a usable http(s) address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
