package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// InsufficientDataMessage is the recommendation stored when no tool could be researched.
const InsufficientDataMessage = "Insufficient data: no tools could be identified for this query, so no recommendation can be made."

// Recommender synthesizes the final recommendation from the fact records.
type Recommender struct {
	model    TextModel
	prompts  Prompts
	settings Settings
	logger   *zap.Logger
}

// NewRecommender creates the recommendation stage.
func NewRecommender(model TextModel, prompts Prompts, settings Settings, logger *zap.Logger) *Recommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommender{model: model, prompts: prompts, settings: settings.WithDefaults(), logger: logger}
}

// Recommend calls the model once with the serialized records. An empty record
// list yields InsufficientDataMessage without a model call.
func (r *Recommender) Recommend(ctx context.Context, query string, records []EntityFactRecord) (RecommendationUpdate, error) {
	if len(records) == 0 {
		return RecommendationUpdate{Text: InsufficientDataMessage}, nil
	}
	data, err := SerializeRecords(records)
	if err != nil {
		return RecommendationUpdate{}, fmt.Errorf("serialize records: %w", err)
	}
	data = Truncator{Limit: r.settings.RecommendationCharLimit}.Truncate(data)

	text, err := r.model.Generate(context.WithoutCancel(ctx), r.prompts.RecommendationSystem, r.prompts.recommendationUser(query, data))
	if err != nil {
		return RecommendationUpdate{}, fmt.Errorf("generate recommendation: %w", classify("generate", err))
	}
	r.logger.Debug("Recommendation generated", zap.Int("records", len(records)), zap.Int("chars", len(text)))
	return RecommendationUpdate{Text: text}, nil
}

// SerializeRecords renders records as comma-separated JSON objects in order.
func SerializeRecords(records []EntityFactRecord) (string, error) {
	parts := make([]string, 0, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, ", "), nil
}
