package health

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
)

const slowThreshold = 250 * time.Millisecond

// PingChecker reports a dependency healthy when ping succeeds quickly.
type PingChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	ping     func(ctx context.Context) error
	open     func() bool
}

// NewPingChecker wraps an arbitrary ping function.
func NewPingChecker(name string, critical bool, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingChecker{name: name, critical: critical, timeout: timeout, ping: ping}
}

// NewRedisChecker checks the cache and event mirror backend.
func NewRedisChecker(rw *circuitbreaker.RedisWrapper) *PingChecker {
	c := NewPingChecker("redis", false, 2*time.Second, rw.Ping)
	c.open = rw.IsCircuitBreakerOpen
	return c
}

// NewDatabaseChecker checks the run store.
func NewDatabaseChecker(ping func(ctx context.Context) error) *PingChecker {
	return NewPingChecker("database", true, 5*time.Second, ping)
}

// NewTemporalChecker checks the Temporal frontend.
func NewTemporalChecker(c client.Client) *PingChecker {
	return NewPingChecker("temporal", true, 5*time.Second, func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	})
}

func (p *PingChecker) Name() string           { return p.name }
func (p *PingChecker) IsCritical() bool       { return p.critical }
func (p *PingChecker) Timeout() time.Duration { return p.timeout }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	if p.open != nil && p.open() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open", Message: p.name + " circuit breaker is open"}
	}
	start := time.Now()
	err := p.ping(ctx)
	latency := time.Since(start)
	details := map[string]interface{}{"latency_ms": latency.Milliseconds()}
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: p.name + " ping failed", Details: details}
	}
	if latency > slowThreshold {
		return CheckResult{Status: StatusDegraded, Message: p.name + " responding slowly", Details: details}
	}
	return CheckResult{Status: StatusHealthy, Message: p.name + " healthy", Details: details}
}

// BreakerChecker reports an upstream degraded while its circuit breaker is not closed.
type BreakerChecker struct {
	name string
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreakerChecker(name string, cb *circuitbreaker.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, cb: cb}
}

// RegisterBreakers adds a non-critical checker for every breaker known to the
// metrics collector.
func RegisterBreakers(m *Manager) {
	for key, cb := range circuitbreaker.GlobalMetricsCollector.Breakers() {
		_ = m.RegisterChecker(NewBreakerChecker("upstream:"+key, cb))
	}
}

func (b *BreakerChecker) Name() string           { return b.name }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(context.Context) CheckResult {
	state := b.cb.State()
	counts := b.cb.Counts()
	details := map[string]interface{}{
		"state":                state.String(),
		"consecutive_failures": counts.ConsecutiveFailures,
	}
	switch state {
	case circuitbreaker.StateOpen:
		return CheckResult{Status: StatusUnhealthy, Message: "circuit breaker open", Details: details}
	case circuitbreaker.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker probing", Details: details}
	}
	return CheckResult{Status: StatusHealthy, Details: details}
}
