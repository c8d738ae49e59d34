package circuitbreaker

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/tracing"
)

// HTTPWrapper wraps an http.Client with a circuit breaker and records metrics consistently
type HTTPWrapper struct {
	client  *http.Client
	cb      *CircuitBreaker
	name    string
	service string
	logger  *zap.Logger
}

// NewHTTPWrapper creates an HTTP wrapper whose breaker uses SettingsFor(name).
func NewHTTPWrapper(client *http.Client, name, service string, logger *zap.Logger) *HTTPWrapper {
	return NewHTTPWrapperWithSettings(client, name, service, SettingsFor(name), logger)
}

// NewHTTPWrapperWithSettings creates an HTTP wrapper with explicit breaker settings.
func NewHTTPWrapperWithSettings(client *http.Client, name, service string, s Settings, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker(name, s.ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return &HTTPWrapper{client: client, cb: cb, name: name, service: service, logger: logger}
}

// Do executes an HTTP request through the circuit breaker. 5xx and 429
// responses count as breaker failures but are still returned to the caller
// with a nil error; other 4xx responses do not trip the breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	ctx, span := tracing.StartHTTPSpan(req.Context(), req.Method, req.URL.String())
	req = req.WithContext(ctx)
	tracing.InjectTraceparent(ctx, req)

	var resp *http.Response
	err := hw.cb.Execute(ctx, func() error {
		var err error
		resp, err = hw.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{Code: resp.StatusCode}
		}
		return nil
	})

	GlobalMetricsCollector.RecordRequest(hw.name, hw.service, hw.cb.State(), err == nil)

	if _, ok := err.(*StatusError); ok {
		tracing.End(span, err)
		return resp, nil
	}
	tracing.End(span, err)
	return resp, err
}

// Breaker exposes the underlying breaker.
func (hw *HTTPWrapper) Breaker() *CircuitBreaker { return hw.cb }

// StatusError marks an HTTP status counted as a breaker failure.
type StatusError struct{ Code int }

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
}
