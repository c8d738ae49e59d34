package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// printProgress writes one line per lifecycle event.
func printProgress(w io.Writer, e research.Event) {
	prefix := fmt.Sprintf("[%3d%%]", e.Progress)
	switch e.Type {
	case research.EventStageStarted:
		fmt.Fprintf(w, "%s %s started\n", prefix, stageLabel(e.Stage))
	case research.EventStageCompleted:
		line := fmt.Sprintf("%s %s done", prefix, stageLabel(e.Stage))
		if e.Message != "" {
			line += ": " + e.Message
		}
		fmt.Fprintln(w, line)
	case research.EventEntityStarted:
		fmt.Fprintf(w, "%s researching %d/%d: %s\n", prefix, e.Index+1, e.Total, e.Entity)
	case research.EventEntityCompleted:
		fmt.Fprintf(w, "%s finished %s (%s)\n", prefix, e.Entity, e.Source)
	case research.EventRunCompleted:
		fmt.Fprintf(w, "%s run %s\n", prefix, e.Status)
	case research.EventRunFailed:
		fmt.Fprintf(w, "%s run failed: %s\n", prefix, e.Reason)
	}
}

func stageLabel(stage string) string {
	switch stage {
	case research.StageExtraction:
		return "tool extraction"
	case research.StageResearch:
		return "tool research"
	case research.StageRecommendation:
		return "recommendation"
	}
	return stage
}

// printReport writes the summary, recommendation and per-tool details.
func printReport(w io.Writer, s *research.ResearchState) {
	sum := research.Summarize(s)
	rule := strings.Repeat("-", 60)

	fmt.Fprintf(w, "\nResults for: %s\n%s\n", s.Query, rule)
	fmt.Fprintf(w, "Run:           %s (%s)\n", s.RunID, s.Status)
	if s.FailureReason != "" {
		fmt.Fprintf(w, "Failure:       %s\n", s.FailureReason)
	}
	fmt.Fprintf(w, "Tools found:   %d\n", sum.ToolsFound)
	fmt.Fprintf(w, "Open source:   %d\n", sum.OpenSource)
	fmt.Fprintf(w, "With APIs:     %d\n", sum.WithAPIs)
	fmt.Fprintf(w, "Free/freemium: %d\n", sum.FreeFreemium)

	if s.Recommendation != nil {
		fmt.Fprintf(w, "\nRecommendation\n%s\n%s\n", rule, strings.TrimSpace(*s.Recommendation))
	}

	if len(s.Companies) == 0 {
		return
	}
	fmt.Fprintf(w, "\nTools\n%s\n", rule)
	for i, c := range s.Companies {
		fmt.Fprintf(w, "%d. %s\n", i+1, c.Name)
		if c.Website != nil {
			fmt.Fprintf(w, "   Website:      %s\n", *c.Website)
		}
		fmt.Fprintf(w, "   Pricing:      %s\n", c.PricingModel)
		fmt.Fprintf(w, "   Open source:  %s\n", c.IsOpenSource)
		fmt.Fprintf(w, "   API:          %s\n", c.APIAvailable)
		writeList(w, "Tech stack:", c.TechStack)
		writeList(w, "Languages:", c.LanguageSupport)
		writeList(w, "Integrations:", c.IntegrationCapabilities)
		fmt.Fprintf(w, "   Description:  %s\n", c.Description)
	}
}

func writeList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	const limit = 5
	shown := items
	if len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintf(w, "   %-13s %s\n", label, strings.Join(shown, ", "))
}
