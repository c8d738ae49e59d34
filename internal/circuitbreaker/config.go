package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the tunable part of a breaker Config, loadable from config files.
type Settings struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
}

// Breaker names for the collaborators that go through a breaker.
const (
	NameSearch = "search"
	NameScrape = "scrape"
	NameLLM    = "llm"
	NameRedis  = "redis"
	NameDB     = "database"
)

// SettingsFor returns env-tunable settings for a breaker name. Each knob reads
// CB_<NAME>_<KNOB>, e.g. CB_SCRAPE_FAILURE_THRESHOLD.
func SettingsFor(name string) Settings {
	d := defaults(name)
	prefix := "CB_" + strings.ToUpper(name) + "_"
	return Settings{
		MaxRequests:      getEnvUint32(prefix+"MAX_REQUESTS", d.MaxRequests),
		Interval:         getEnvDuration(prefix+"INTERVAL", d.Interval),
		Timeout:          getEnvDuration(prefix+"TIMEOUT", d.Timeout),
		FailureThreshold: getEnvUint32(prefix+"FAILURE_THRESHOLD", d.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"SUCCESS_THRESHOLD", d.SuccessThreshold),
	}
}

func defaults(name string) Settings {
	switch name {
	case NameScrape:
		return Settings{MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 8, SuccessThreshold: 2}
	case NameLLM:
		return Settings{MaxRequests: 2, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 3, SuccessThreshold: 1}
	case NameRedis:
		return Settings{MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2}
	case NameDB:
		return Settings{MaxRequests: 3, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 5, SuccessThreshold: 2}
	default:
		return Settings{MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2}
	}
}

// ToConfig converts Settings to a breaker Config
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
