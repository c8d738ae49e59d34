package streaming

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
)

// RedisConfig controls the Redis Streams mirror.
type RedisConfig struct {
	Prefix    string        `mapstructure:"prefix"`
	MaxLen    int64         `mapstructure:"max_len"`
	TTL       time.Duration `mapstructure:"ttl"`
	WriteWait time.Duration `mapstructure:"write_timeout"`
}

// RedisMirror appends every event to the Redis stream <prefix><run_id> so
// other processes can follow a run.
type RedisMirror struct {
	rw     *circuitbreaker.RedisWrapper
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisMirror creates a mirror on top of a breaker-wrapped client.
func NewRedisMirror(rw *circuitbreaker.RedisWrapper, cfg RedisConfig, logger *zap.Logger) *RedisMirror {
	if cfg.Prefix == "" {
		cfg.Prefix = "toolscout:events:"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 256
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMirror{rw: rw, cfg: cfg, logger: logger}
}

// StreamKey returns the stream holding runID's events.
func (r *RedisMirror) StreamKey(runID string) string {
	return r.cfg.Prefix + runID
}

// Mirror implements Mirror. Failures are logged and never surface to the run.
func (r *RedisMirror) Mirror(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteWait)
	defer cancel()

	key := r.StreamKey(e.RunID)
	_, err := r.rw.XAdd(ctx, key, r.cfg.MaxLen, map[string]interface{}{
		"type":     string(e.Type),
		"seq":      strconv.FormatUint(e.Seq, 10),
		"progress": strconv.Itoa(e.Progress),
		"payload":  string(e.Marshal()),
	})
	if err != nil {
		r.logger.Warn("failed to mirror event to redis",
			zap.String("run_id", e.RunID),
			zap.String("type", string(e.Type)),
			zap.Error(err))
		return
	}
	if e.Seq == 1 || e.Terminal() {
		if err := r.rw.Expire(ctx, key, r.cfg.TTL); err != nil {
			r.logger.Debug("failed to set stream ttl", zap.String("stream", key), zap.Error(err))
		}
	}
}
