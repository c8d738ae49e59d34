package research

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompts holds system prompts and user-prompt templates for the three model
// calls. Templates use {query}, {content}, {company} and {data} placeholders.
type Prompts struct {
	ExtractionSystem     string `yaml:"extraction_system"`
	ExtractionUser       string `yaml:"extraction_user"`
	AnalysisSystem       string `yaml:"analysis_system"`
	AnalysisUser         string `yaml:"analysis_user"`
	RecommendationSystem string `yaml:"recommendation_system"`
	RecommendationUser   string `yaml:"recommendation_user"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		ExtractionSystem: `You are a tech researcher. Extract specific tool, library, platform, or service names from articles.
Focus on actual products and tools developers can use, not general concepts or features.`,
		ExtractionUser: `Query: {query}
Article content:
{content}

Extract a list of specific tool/service names mentioned in this content that are relevant to "{query}".

Rules:
- Only include actual product names, not generic terms
- Focus on tools developers can directly use or integrate
- Include both open source and commercial options
- Limit to the most relevant results

Return just the tool names, one per line, no descriptions.`,
		AnalysisSystem: `You are analyzing developer tools and programming technologies.
Focus on extracting information relevant to programmers and software developers.
Pay special attention to programming languages, frameworks, APIs, SDKs, and development workflows.`,
		AnalysisUser: `Company/Tool: {company}
Website content: {content}

Analyze this content from a developer's perspective and provide:
- pricing_model: one of Free, Freemium, Paid, Enterprise, Unknown
- is_open_source: true if open source, false if proprietary, null if unclear
- tech_stack: technologies, frameworks and platforms it is built on or supports
- description: one sentence on what the tool does for developers
- api_available: true if REST/GraphQL/SDK access is offered, null if unclear
- language_support: programming languages explicitly supported
- integration_capabilities: tools and platforms it integrates with

Focus on developer-relevant features like APIs, SDKs, language support, integrations, and development workflows.`,
		RecommendationSystem: `You are a senior software engineer providing quick, concise tech recommendations.
Keep responses brief and actionable, 3-4 sentences max. No long explanations.`,
		RecommendationUser: `Developer Query: {query}
Tools/Technologies Analyzed: {data}

Provide a brief recommendation (3-4 sentences max) covering:
- Which tool is best and why
- Key cost/pricing consideration
- Main technical advantage

Be concise and direct, no long explanations needed.`,
	}
}

// LoadPrompts reads overrides from a YAML file. Fields absent from the file
// keep their default text. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prompts: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	p.merge(override)
	return p, nil
}

func (p *Prompts) merge(o Prompts) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.ExtractionSystem, o.ExtractionSystem)
	set(&p.ExtractionUser, o.ExtractionUser)
	set(&p.AnalysisSystem, o.AnalysisSystem)
	set(&p.AnalysisUser, o.AnalysisUser)
	set(&p.RecommendationSystem, o.RecommendationSystem)
	set(&p.RecommendationUser, o.RecommendationUser)
}

func (p Prompts) extractionUser(query, content string) string {
	return strings.NewReplacer("{query}", query, "{content}", content).Replace(p.ExtractionUser)
}

func (p Prompts) analysisUser(company, content string) string {
	return strings.NewReplacer("{company}", company, "{content}", content).Replace(p.AnalysisUser)
}

func (p Prompts) recommendationUser(query, data string) string {
	return strings.NewReplacer("{query}", query, "{data}", data).Replace(p.RecommendationUser)
}
