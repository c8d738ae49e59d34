package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Decode validates raw model output against schema and unmarshals it into out.
// Every failure is a research.ErrStructuredOutput.
func Decode(raw string, schema research.Schema, out interface{}) error {
	body := StripCodeFence(raw)
	if body == "" {
		return research.InvalidOutput("generate_structured", errors.New("empty model output"))
	}
	if !json.Valid([]byte(body)) {
		return research.InvalidOutput("generate_structured", errors.New("model output is not valid JSON"))
	}
	if schema.Document != nil {
		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema.Document),
			gojsonschema.NewStringLoader(body),
		)
		if err != nil {
			return research.InvalidOutput("generate_structured", fmt.Errorf("validate: %w", err))
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return research.InvalidOutput("generate_structured", fmt.Errorf("schema %s: %s", schema.Name, strings.Join(msgs, "; ")))
		}
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return research.InvalidOutput("generate_structured", err)
	}
	return nil
}

// StripCodeFence removes a surrounding ```json fence, if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
