package research

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	enrichmentSchemaOnce sync.Once
	enrichmentSchema     Schema
	enrichmentSchemaErr  error
)

// EnrichmentSchema returns the JSON Schema the analysis model must satisfy.
func EnrichmentSchema() (Schema, error) {
	enrichmentSchemaOnce.Do(func() {
		doc, err := reflectSchema(&Enrichment{})
		if err != nil {
			enrichmentSchemaErr = fmt.Errorf("enrichment schema: %w", err)
			return
		}
		// Pointer booleans are tri-state: null means unknown.
		if props, ok := doc["properties"].(map[string]interface{}); ok {
			for _, name := range []string{"is_open_source", "api_available"} {
				if p, ok := props[name].(map[string]interface{}); ok {
					p["type"] = []interface{}{"boolean", "null"}
				}
			}
		}
		enrichmentSchema = Schema{Name: "CompanyAnalysis", Document: doc}
	})
	return enrichmentSchema, enrichmentSchemaErr
}

func reflectSchema(v interface{}) (map[string]interface{}, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	delete(doc, "$schema")
	delete(doc, "$id")
	return doc, nil
}
