package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/interceptors"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

const (
	providerService = "service"
	agentID         = "toolscout"
)

// Service calls an HTTP llm-service exposing POST /agent/query.
type Service struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewService creates an llm-service backed model.
func NewService(cfg Config, client *http.Client, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	if client == nil {
		client = interceptors.NewClient(&http.Client{Timeout: cfg.Timeout})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(client, circuitbreaker.NameLLM, providerService, logger),
		logger: logger,
	}
}

type serviceRequest struct {
	Query          string                 `json:"query"`
	Context        map[string]interface{} `json:"context"`
	AgentID        string                 `json:"agent_id"`
	SessionContext map[string]interface{} `json:"session_context"`
}

type serviceResponse struct {
	Success    bool   `json:"success"`
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
	Error      string `json:"error"`
}

// Generate implements research.TextModel.
func (s *Service) Generate(ctx context.Context, system, user string) (string, error) {
	text, err := s.query(ctx, "generate", system, user, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateStructured implements research.StructuredModel.
func (s *Service) GenerateStructured(ctx context.Context, system, user string, schema research.Schema, out interface{}) error {
	text, err := s.query(ctx, "generate_structured", system, user, &schema)
	if err != nil {
		return err
	}
	return Decode(text, schema, out)
}

func (s *Service) query(ctx context.Context, op, system, user string, schema *research.Schema) (text string, err error) {
	started := time.Now()
	defer func() { metrics.RecordCollaboratorCall(providerService, op, err, started) }()

	callCtx := map[string]interface{}{
		"temperature": s.cfg.Temperature,
		"model":       s.cfg.Model,
	}
	if s.cfg.MaxTokens > 0 {
		callCtx["max_tokens"] = s.cfg.MaxTokens
	}
	if schema != nil {
		callCtx["response_format"] = map[string]interface{}{
			"type":        "json_schema",
			"name":        schema.Name,
			"json_schema": schema.Document,
		}
	}
	body, err := json.Marshal(serviceRequest{
		Query:          user,
		Context:        callCtx,
		AgentID:        agentID,
		SessionContext: map[string]interface{}{"system_prompt": system},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.BaseURL, "/")+"/agent/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-ID", agentID)

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", research.Unavailable(op, fmt.Errorf("LLM service call failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", research.Unavailable(op, fmt.Errorf("HTTP %d from LLM service", resp.StatusCode))
	}
	var result serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", research.Unavailable(op, fmt.Errorf("failed to parse LLM response: %w", err))
	}
	if !result.Success {
		return "", research.Unavailable(op, fmt.Errorf("LLM service returned success=false: %s", result.Error))
	}
	s.logger.Debug("LLM service call", zap.String("op", op), zap.Int("tokens_used", result.TokensUsed))
	return result.Response, nil
}
