package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Kocoro-lab/toolscout/internal/circuitbreaker"
	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/tracing"
)

const providerGemini = "gemini"

// contentGenerator is the slice of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements research.TextModel and research.StructuredModel on the
// Gemini API.
type Gemini struct {
	gen         contentGenerator
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

// NewGemini creates a Gemini-backed model.
func NewGemini(cfg Config, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, logger), nil
}

func newGemini(gen contentGenerator, cfg Config, logger *zap.Logger) *Gemini {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.NameLLM, circuitbreaker.SettingsFor(circuitbreaker.NameLLM).ToConfig(), logger)
	circuitbreaker.GlobalMetricsCollector.RegisterCircuitBreaker(circuitbreaker.NameLLM, providerGemini, cb)
	return &Gemini{
		gen:         gen,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     cfg.Timeout,
		cb:          cb,
		logger:      logger,
	}
}

// Generate implements research.TextModel.
func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	text, err := g.call(ctx, "generate", system, user, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateStructured implements research.StructuredModel.
func (g *Gemini) GenerateStructured(ctx context.Context, system, user string, schema research.Schema, out interface{}) error {
	text, err := g.call(ctx, "generate_structured", system, user, &schema)
	if err != nil {
		return err
	}
	return Decode(text, schema, out)
}

func (g *Gemini) call(ctx context.Context, op, system, user string, schema *research.Schema) (text string, err error) {
	started := time.Now()
	defer func() { metrics.RecordCollaboratorCall(providerGemini, op, err, started) }()

	ctx, span := tracing.StartSpan(ctx, "llm."+op)
	defer func() { tracing.End(span, err) }()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = ToGenaiSchema(schema.Document)
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}}

	resp, err := circuitbreaker.Call(ctx, g.cb, func() (*genai.GenerateContentResponse, error) {
		return g.gen.GenerateContent(ctx, g.model, contents, config)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", research.Unavailable(op, err)
	}
	text = responseText(resp)
	if text == "" {
		if schema != nil {
			return "", research.InvalidOutput(op, errors.New("empty response from Gemini"))
		}
		return "", research.Unavailable(op, errors.New("empty response from Gemini"))
	}
	if resp.UsageMetadata != nil {
		g.logger.Debug("Gemini call",
			zap.String("op", op),
			zap.String("model", g.model),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	return text, nil
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
