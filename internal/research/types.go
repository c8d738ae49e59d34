package research

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Phase is a node of the orchestrator state machine. Transitions only move forward.
type Phase string

const (
	PhaseStart          Phase = "start"
	PhaseToolsExtracted Phase = "tools_extracted"
	PhaseResearched     Phase = "researched"
	PhaseAnalyzed       Phase = "analyzed"
)

// Status is the terminal-status marker of a run.
type Status string

const (
	StatusInProgress       Status = "in_progress"
	StatusCompleted        Status = "completed"
	StatusInsufficientData Status = "insufficient_data"
	StatusFailed           Status = "failed"
)

// Terminal reports whether no further stage may run.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// PricingModel classifies how a tool is sold.
type PricingModel string

const (
	PricingFree       PricingModel = "Free"
	PricingFreemium   PricingModel = "Freemium"
	PricingPaid       PricingModel = "Paid"
	PricingEnterprise PricingModel = "Enterprise"
	PricingUnknown    PricingModel = "Unknown"
)

// NormalizePricing maps free-form model output onto the pricing vocabulary.
func NormalizePricing(s string) PricingModel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free", "open source", "oss":
		return PricingFree
	case "freemium", "free tier", "free + paid":
		return PricingFreemium
	case "paid", "subscription", "usage-based", "pay-as-you-go":
		return PricingPaid
	case "enterprise", "contact sales":
		return PricingEnterprise
	default:
		return PricingUnknown
	}
}

// Tristate is a boolean fact that may be unknown.
type Tristate int8

const (
	Unknown Tristate = iota
	Yes
	No
)

// TristateOf converts an optional boolean into a Tristate.
func TristateOf(b *bool) Tristate {
	switch {
	case b == nil:
		return Unknown
	case *b:
		return Yes
	default:
		return No
	}
}

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// IsTrue reports a known positive value.
func (t Tristate) IsTrue() bool { return t == Yes }

func (t Tristate) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tristate) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*t = Unknown
	case bool:
		if v {
			*t = Yes
		} else {
			*t = No
		}
	case string:
		switch strings.ToLower(v) {
		case "yes", "true":
			*t = Yes
		case "no", "false":
			*t = No
		default:
			*t = Unknown
		}
	default:
		return fmt.Errorf("tristate: unsupported value %v", raw)
	}
	return nil
}

// RecordSource tells how the enrichment fields of a record were produced.
type RecordSource string

const (
	SourceModel       RecordSource = "model"       // schema-validated model output
	SourcePlaceholder RecordSource = "placeholder" // site could not be resolved or fetched
	SourceDefault     RecordSource = "default"     // model output failed validation
)

// UnknownDescription is the description sentinel for records without usable enrichment.
const UnknownDescription = "Unknown"

// EntityFactRecord is the enrichment result for one discovered tool.
// Enrichment fields are always populated; unknown values use explicit sentinels
// and empty (non-nil) sets.
type EntityFactRecord struct {
	Name    string  `json:"name"`
	Website *string `json:"website"`

	PricingModel            PricingModel `json:"pricing_model"`
	IsOpenSource            Tristate     `json:"is_open_source"`
	TechStack               []string     `json:"tech_stack"`
	Description             string       `json:"description"`
	APIAvailable            Tristate     `json:"api_available"`
	LanguageSupport         []string     `json:"language_support"`
	IntegrationCapabilities []string     `json:"integration_capabilities"`

	Source RecordSource `json:"source"`
}

// Enrichment is the schema-validated part of a record as returned by the model.
type Enrichment struct {
	PricingModel            string   `json:"pricing_model" jsonschema:"required,enum=Free,enum=Freemium,enum=Paid,enum=Enterprise,enum=Unknown,description=Pricing model of the tool"`
	IsOpenSource            *bool    `json:"is_open_source" jsonschema:"description=Whether the tool is open source; null when unclear"`
	TechStack               []string `json:"tech_stack" jsonschema:"required,description=Technologies and frameworks the tool is built on or supports"`
	Description             string   `json:"description" jsonschema:"required,description=One sentence describing what the tool does"`
	APIAvailable            *bool    `json:"api_available" jsonschema:"description=Whether a REST/GraphQL/SDK API is offered; null when unclear"`
	LanguageSupport         []string `json:"language_support" jsonschema:"required,description=Programming languages with first-class support"`
	IntegrationCapabilities []string `json:"integration_capabilities" jsonschema:"required,description=Tools and platforms it integrates with"`
}

// PlaceholderRecord is emitted when the entity's site cannot be resolved or fetched.
func PlaceholderRecord(name string) EntityFactRecord {
	r := unknownRecord(name)
	r.Source = SourcePlaceholder
	return r
}

// DefaultRecord is emitted when the model output fails schema validation.
// Identity fields are kept.
func DefaultRecord(name, website string) EntityFactRecord {
	r := unknownRecord(name)
	r.Website = stringPtr(website)
	r.Source = SourceDefault
	return r
}

func unknownRecord(name string) EntityFactRecord {
	return EntityFactRecord{
		Name:                    name,
		PricingModel:            PricingUnknown,
		IsOpenSource:            Unknown,
		TechStack:               []string{},
		Description:             UnknownDescription,
		APIAvailable:            Unknown,
		LanguageSupport:         []string{},
		IntegrationCapabilities: []string{},
	}
}

// MergeRecord combines identity fields with model enrichment.
func MergeRecord(name, website string, e Enrichment) EntityFactRecord {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = UnknownDescription
	}
	return EntityFactRecord{
		Name:                    name,
		Website:                 stringPtr(website),
		PricingModel:            NormalizePricing(e.PricingModel),
		IsOpenSource:            TristateOf(e.IsOpenSource),
		TechStack:               cleanSet(e.TechStack),
		Description:             desc,
		APIAvailable:            TristateOf(e.APIAvailable),
		LanguageSupport:         cleanSet(e.LanguageSupport),
		IntegrationCapabilities: cleanSet(e.IntegrationCapabilities),
		Source:                  SourceModel,
	}
}

// cleanSet trims, drops blanks and exact duplicates, and never returns nil.
func cleanSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ResearchState is the record threaded through one run.
type ResearchState struct {
	RunID          string             `json:"run_id"`
	Query          string             `json:"query"`
	Phase          Phase              `json:"phase"`
	Status         Status             `json:"status"`
	ExtractedTools []string           `json:"extracted_tools"`
	Companies      []EntityFactRecord `json:"companies"`
	Recommendation *string            `json:"recommendation"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// NewState creates the initial state for a run.
func NewState(runID, query string, now time.Time) *ResearchState {
	return &ResearchState{
		RunID:          runID,
		Query:          query,
		Phase:          PhaseStart,
		Status:         StatusInProgress,
		ExtractedTools: []string{},
		Companies:      []EntityFactRecord{},
		StartedAt:      now,
	}
}
