package research

import (
	"errors"
	"fmt"
	"strings"
)

// Settings are the named caps and counts of a run.
type Settings struct {
	MaxTools                int    `json:"max_tools" mapstructure:"max_tools"`
	ArticleResults          int    `json:"article_results" mapstructure:"article_results"`
	ArticleCharLimit        int    `json:"article_char_limit" mapstructure:"article_char_limit"`
	SiteCharLimit           int    `json:"site_char_limit" mapstructure:"site_char_limit"`
	RecommendationCharLimit int    `json:"recommendation_char_limit" mapstructure:"recommendation_char_limit"`
	Concurrency             int    `json:"concurrency" mapstructure:"concurrency"`
	DiscoveryTerms          string `json:"discovery_terms" mapstructure:"discovery_terms"`
	SiteQuerySuffix         string `json:"site_query_suffix" mapstructure:"site_query_suffix"`
	ArticleSeparator        string `json:"article_separator" mapstructure:"article_separator"`
}

// DefaultSettings returns the reference policy.
func DefaultSettings() Settings {
	return Settings{
		MaxTools:                5,
		ArticleResults:          3,
		ArticleCharLimit:        1500,
		SiteCharLimit:           6000,
		RecommendationCharLimit: 12000,
		Concurrency:             1,
		DiscoveryTerms:          "tools comparison best alternatives",
		SiteQuerySuffix:         "official site",
		ArticleSeparator:        "\n\n",
	}
}

// Upper bounds on the per-run caps. They bound the fan-out and the size of
// every model prompt, whoever supplies the settings.
const (
	MaxToolsLimit              = 25
	ArticleResultsLimit        = 10
	ArticleCharLimitMax        = 50_000
	SiteCharLimitMax           = 100_000
	RecommendationCharLimitMax = 200_000
	ConcurrencyLimit           = 16
)

// ErrInvalidSettings is wrapped by every Validate failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Validate rejects caps outside (0, limit].
func (s Settings) Validate() error {
	var errs []error
	check := func(name string, v, limit int) {
		switch {
		case v <= 0:
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidSettings, name, v))
		case v > limit:
			errs = append(errs, fmt.Errorf("%w: %s must be at most %d, got %d", ErrInvalidSettings, name, limit, v))
		}
	}
	check("max_tools", s.MaxTools, MaxToolsLimit)
	check("article_results", s.ArticleResults, ArticleResultsLimit)
	check("article_char_limit", s.ArticleCharLimit, ArticleCharLimitMax)
	check("site_char_limit", s.SiteCharLimit, SiteCharLimitMax)
	check("recommendation_char_limit", s.RecommendationCharLimit, RecommendationCharLimitMax)
	check("concurrency", s.Concurrency, ConcurrencyLimit)
	return errors.Join(errs...)
}

// WithDefaults fills zero-valued fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&s.MaxTools, d.MaxTools)
	fill(&s.ArticleResults, d.ArticleResults)
	fill(&s.ArticleCharLimit, d.ArticleCharLimit)
	fill(&s.SiteCharLimit, d.SiteCharLimit)
	fill(&s.RecommendationCharLimit, d.RecommendationCharLimit)
	fill(&s.Concurrency, d.Concurrency)
	if strings.TrimSpace(s.DiscoveryTerms) == "" {
		s.DiscoveryTerms = d.DiscoveryTerms
	}
	if strings.TrimSpace(s.SiteQuerySuffix) == "" {
		s.SiteQuerySuffix = d.SiteQuerySuffix
	}
	if s.ArticleSeparator == "" {
		s.ArticleSeparator = d.ArticleSeparator
	}
	return s
}

func (s Settings) discoveryQuery(query string) string {
	return strings.TrimSpace(query) + " " + s.DiscoveryTerms
}

func (s Settings) siteQuery(name string) string {
	return name + " " + s.SiteQuerySuffix
}
