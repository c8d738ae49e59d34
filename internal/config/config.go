package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/llm"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/streaming"
	"github.com/Kocoro-lab/toolscout/internal/temporal"
	"github.com/Kocoro-lab/toolscout/internal/tracing"
	"github.com/Kocoro-lab/toolscout/internal/web"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config/toolscout.yaml"

// EnvPrefix prefixes every environment override, e.g. TOOLSCOUT_RESEARCH_MAX_TOOLS.
const EnvPrefix = "TOOLSCOUT"

type ServiceConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ResearchConfig holds the per-run policy knobs and the prompt override file.
type ResearchConfig struct {
	research.Settings `mapstructure:",squash"`
	PromptsPath       string `mapstructure:"prompts_path"`
}

type SearchConfig struct {
	Provider       string `mapstructure:"provider"` // firecrawl or duckduckgo
	Fallback       bool   `mapstructure:"fallback"` // fall back to DuckDuckGo and direct HTML fetches
	DuckDuckGoURL  string `mapstructure:"duckduckgo_url"`
	ScrapeFallback bool   `mapstructure:"scrape_fallback"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type StreamingConfig struct {
	streaming.Config `mapstructure:",squash"`
	MirrorToRedis    bool                  `mapstructure:"mirror_to_redis"`
	PersistEvents    bool                  `mapstructure:"persist_events"`
	Redis            streaming.RedisConfig `mapstructure:"redis"`
}

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig         `mapstructure:"service"`
	Logging   LoggingConfig         `mapstructure:"logging"`
	Research  ResearchConfig        `mapstructure:"research"`
	Search    SearchConfig          `mapstructure:"search"`
	Firecrawl web.FirecrawlConfig   `mapstructure:"firecrawl"`
	Scraper   web.HTMLScraperConfig `mapstructure:"scraper"`
	LLM       llm.Config            `mapstructure:"llm"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Cache     web.CacheConfig       `mapstructure:"cache"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Temporal  temporal.Config       `mapstructure:"temporal"`
	Tracing   tracing.Config        `mapstructure:"tracing"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
	Streaming StreamingConfig       `mapstructure:"streaming"`
}

// DatabaseConfig enables the run store.
type DatabaseConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	db.Config `mapstructure:",squash"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads .env (if present), the YAML file at path (if present) and
// TOOLSCOUT_* overrides, then validates the result.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) || path != DefaultPath {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applySecrets(&cfg)
	cfg.Research.Settings = cfg.Research.Settings.WithDefaults()
	if !cfg.Redis.Enabled {
		cfg.Cache.Enabled = false
		cfg.Streaming.MirrorToRedis = false
	}
	if !cfg.Database.Enabled {
		cfg.Streaming.PersistEvents = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := research.DefaultSettings()

	v.SetDefault("service.http_port", 8081)
	v.SetDefault("service.shutdown_timeout", 30*time.Second)
	v.SetDefault("service.run_timeout", 15*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("research.max_tools", d.MaxTools)
	v.SetDefault("research.article_results", d.ArticleResults)
	v.SetDefault("research.article_char_limit", d.ArticleCharLimit)
	v.SetDefault("research.site_char_limit", d.SiteCharLimit)
	v.SetDefault("research.recommendation_char_limit", d.RecommendationCharLimit)
	v.SetDefault("research.concurrency", d.Concurrency)
	v.SetDefault("research.discovery_terms", d.DiscoveryTerms)
	v.SetDefault("research.site_query_suffix", d.SiteQuerySuffix)
	v.SetDefault("research.article_separator", d.ArticleSeparator)
	v.SetDefault("research.prompts_path", "")

	v.SetDefault("search.provider", "firecrawl")
	v.SetDefault("search.fallback", true)
	v.SetDefault("search.scrape_fallback", true)
	v.SetDefault("search.duckduckgo_url", "")

	v.SetDefault("firecrawl.api_key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("firecrawl.timeout", 60*time.Second)
	v.SetDefault("firecrawl.requests_per_sec", 2.0)
	v.SetDefault("firecrawl.burst", 2)
	v.SetDefault("firecrawl.only_main_content", true)

	v.SetDefault("scraper.timeout", 20*time.Second)
	v.SetDefault("scraper.user_agent", "toolscout/1.0")
	v.SetDefault("scraper.max_bytes", 2<<20)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "http://llm-service:8000")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 120*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "toolscout:cache")
	v.SetDefault("cache.search_ttl", 6*time.Hour)
	v.SetDefault("cache.scrape_ttl", 24*time.Hour)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "toolscout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "toolscout")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "toolscout-research")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "toolscout")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("streaming.capacity", 256)
	v.SetDefault("streaming.max_runs", 1024)
	v.SetDefault("streaming.mirror_to_redis", false)
	v.SetDefault("streaming.persist_events", false)
	v.SetDefault("streaming.redis.prefix", "toolscout:events:")
	v.SetDefault("streaming.redis.max_len", 256)
	v.SetDefault("streaming.redis.ttl", 24*time.Hour)
}

// applySecrets fills API keys from the conventional unprefixed variables.
func applySecrets(cfg *Config) {
	if cfg.Firecrawl.APIKey == "" {
		cfg.Firecrawl.APIKey = os.Getenv("FIRECRAWL_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if v := os.Getenv(k); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Research.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("research: %w", err))
	}
	if c.Service.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("service.http_port must be positive"))
	}
	switch c.LLM.Provider {
	case "gemini", "service":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be gemini or service, got %q", c.LLM.Provider))
	}
	switch c.Search.Provider {
	case "firecrawl", "duckduckgo":
	default:
		errs = append(errs, fmt.Errorf("search.provider must be firecrawl or duckduckgo, got %q", c.Search.Provider))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
