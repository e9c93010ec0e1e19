package config

import (
	"time"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for PriceWatch.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Parser    ParserConfig    `mapstructure:"parser"    yaml:"parser"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Forecast  ForecastConfig  `mapstructure:"forecast"  yaml:"forecast"`
	Sentiment SentimentConfig `mapstructure:"sentiment" yaml:"sentiment"`
	AI        AIConfig        `mapstructure:"ai"        yaml:"ai"`
	Notify    NotifyConfig    `mapstructure:"notify"    yaml:"notify"`
	Monitor   MonitorConfig   `mapstructure:"monitor"   yaml:"monitor"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	Catalog   []CatalogEntry  `mapstructure:"catalog"   yaml:"catalog"`
}

// EngineConfig controls the ingestion worker pool.
type EngineConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// FetcherConfig controls page loading and the readiness retry loop.
type FetcherConfig struct {
	Type           string        `mapstructure:"type"            yaml:"type"` // browser, http
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"    yaml:"load_timeout"`
	ReadySelector  string        `mapstructure:"ready_selector"  yaml:"ready_selector"`
	SnapshotDir    string        `mapstructure:"snapshot_dir"    yaml:"snapshot_dir"`
	Headless       bool          `mapstructure:"headless"        yaml:"headless"`
	Stealth        bool          `mapstructure:"stealth"         yaml:"stealth"`
	BrowserBin     string        `mapstructure:"browser_bin"     yaml:"browser_bin"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"`
}

// ParserConfig holds one extraction rule per product field.
type ParserConfig struct {
	Price       ParseRule `mapstructure:"price"        yaml:"price"`
	Discount    ParseRule `mapstructure:"discount"     yaml:"discount"`
	Rating      ParseRule `mapstructure:"rating"       yaml:"rating"`
	ReviewsLink ParseRule `mapstructure:"reviews_link" yaml:"reviews_link"`
	Review      ParseRule `mapstructure:"review"       yaml:"review"`
}

// ParseRule defines a single extraction rule.
type ParseRule struct {
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
}

// StorageConfig controls the history files and optional mirrors.
type StorageConfig struct {
	Dir             string         `mapstructure:"dir"              yaml:"dir"`
	ObservationFile string         `mapstructure:"observation_file" yaml:"observation_file"`
	ReviewFile      string         `mapstructure:"review_file"      yaml:"review_file"`
	Mongo           MongoConfig    `mapstructure:"mongo"            yaml:"mongo"`
	Postgres        PostgresConfig `mapstructure:"postgres"         yaml:"postgres"`
	Redis           RedisConfig    `mapstructure:"redis"            yaml:"redis"`
}

// MongoConfig controls the MongoDB history mirror.
type MongoConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// PostgresConfig controls the PostgreSQL history mirror.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"   yaml:"enabled"`
	DSN      string `mapstructure:"dsn"       yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// RedisConfig controls the latest-snapshot publisher.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"  yaml:"enabled"`
	Addr     string        `mapstructure:"addr"     yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db"       yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl"      yaml:"ttl"`
	Prefix   string        `mapstructure:"prefix"   yaml:"prefix"`
}

// ForecastConfig controls discount forecasting.
type ForecastConfig struct {
	Horizon int `mapstructure:"horizon" yaml:"horizon"`
	Order   int `mapstructure:"order"   yaml:"order"`
}

// SentimentConfig controls review classification.
type SentimentConfig struct {
	Provider  string `mapstructure:"provider"   yaml:"provider"` // llm, http
	MaxLength int    `mapstructure:"max_length" yaml:"max_length"`
	Endpoint  string `mapstructure:"endpoint"   yaml:"endpoint"`
	APIKey    string `mapstructure:"api_key"    yaml:"api_key"`
}

// AIConfig controls the text-completion provider.
type AIConfig struct {
	Provider    string        `mapstructure:"provider"    yaml:"provider"` // openai, ollama
	Model       string        `mapstructure:"model"       yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// NotifyConfig controls recommendation delivery.
type NotifyConfig struct {
	SlackWebhook   string        `mapstructure:"slack_webhook"    yaml:"slack_webhook"`
	TelegramToken  string        `mapstructure:"telegram_token"   yaml:"telegram_token"`
	TelegramChatID string        `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id"`
	TelegramAPI    string        `mapstructure:"telegram_api"     yaml:"telegram_api"`
	Timeout        time.Duration `mapstructure:"timeout"          yaml:"timeout"`
}

// MonitorConfig controls the watch loop.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// CatalogEntry is one monitored product.
type CatalogEntry struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	URL  string `mapstructure:"url"  yaml:"url"  validate:"required,url"`
}

// Products converts the configured catalog into pipeline products.
func (c *Config) Products() []types.Product {
	out := make([]types.Product, len(c.Catalog))
	for i, e := range c.Catalog {
		out[i] = types.Product{Name: e.Name, URL: e.URL}
	}
	return out
}

// DefaultCatalog is the product set monitored when no catalog is configured.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "Apple iPhone 15", URL: "https://www.amazon.in/dp/B0CHX3TW6X?ref=ods_ucc_kindle_BBCHX2WQLX&th=1"},
		{Name: "Apple 2023 MacBook Pro (16-inch)", URL: "https://amzn.in/d/2K038xa"},
		{Name: "OnePlus Nord 456 (Mercurial Silver, 8GB RAM, 256GB Storage)", URL: "https://amzn.in/d/2K038xa"},
		{Name: "Sony WH-1000XM5 Wireless Headphones", URL: "https://amzn.in/d/4LJ9XL"},
	}
}

// DefaultParser returns the extraction rules for Amazon product pages.
func DefaultParser() ParserConfig {
	return ParserConfig{
		Price: ParseRule{
			Type:     "xpath",
			Selector: `//*[@id="corePriceDisplay_desktop_feature_div"]/div[1]/span[3]/span[2]/span[2]`,
		},
		Discount: ParseRule{
			Type:     "xpath",
			Selector: `//*[@id="corePriceDisplay_desktop_feature_div"]/div[1]/span[2]`,
		},
		Rating: ParseRule{
			Type:     "css",
			Selector: ".a-icon-popover",
		},
		ReviewsLink: ParseRule{
			Type:      "xpath",
			Selector:  `//a[contains(text(), 'See customer reviews')]`,
			Attribute: "href",
		},
		Review: ParseRule{
			Type:     "css",
			Selector: "#cm_cr-review_list span",
		},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency: 4,
		},
		Fetcher: FetcherConfig{
			Type:           "browser",
			MaxRetries:     3,
			RetryDelay:     5 * time.Second,
			LoadTimeout:    10 * time.Second,
			ReadySelector:  ".a-offscreen",
			Headless:       true,
			Stealth:        true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
		},
		Parser: DefaultParser(),
		Storage: StorageConfig{
			Dir:             ".",
			ObservationFile: "competitor_data.csv",
			ReviewFile:      "reviews.csv",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "pricewatch",
			},
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				TTL:    24 * time.Hour,
				Prefix: "pricewatch:latest:",
			},
		},
		Forecast: ForecastConfig{
			Horizon: 5,
			Order:   5,
		},
		Sentiment: SentimentConfig{
			Provider:  "llm",
			MaxLength: 512,
		},
		AI: AIConfig{
			Provider: "openai",
			Model:    "llama3-8b-8192",
			Endpoint: "https://api.groq.com/openai/v1",
			Timeout:  60 * time.Second,
		},
		Notify: NotifyConfig{
			TelegramAPI: "https://api.telegram.org",
			Timeout:     15 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Catalog: DefaultCatalog(),
	}
}
