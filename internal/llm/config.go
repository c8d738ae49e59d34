package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Config selects and configures the model backend.
type Config struct {
	Provider    string        `mapstructure:"provider"` // "gemini" or "service"
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"` // llm-service base URL
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gemini-2.5-pro"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://llm-service:8000"
	}
	return c
}

// Model is a backend usable for both free-text and structured calls.
type Model interface {
	research.TextModel
	research.StructuredModel
}

// New builds the configured backend.
func New(cfg Config, logger *zap.Logger) (Model, error) {
	switch cfg.Provider {
	case "", providerGemini:
		return NewGemini(cfg, logger)
	case providerService:
		return NewService(cfg, nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
