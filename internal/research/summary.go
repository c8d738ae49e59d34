package research

// Summary counts the headline facts of a finished run.
type Summary struct {
	ToolsFound   int `json:"tools_found"`
	OpenSource   int `json:"open_source"`
	WithAPIs     int `json:"with_apis"`
	FreeFreemium int `json:"free_or_freemium"`
}

// Summarize computes the summary of a state's records. Unknown flags do not count.
func Summarize(s *ResearchState) Summary {
	if s == nil {
		return Summary{}
	}
	sum := Summary{ToolsFound: len(s.Companies)}
	for _, c := range s.Companies {
		if c.IsOpenSource.IsTrue() {
			sum.OpenSource++
		}
		if c.APIAvailable.IsTrue() {
			sum.WithAPIs++
		}
		if c.PricingModel == PricingFree || c.PricingModel == PricingFreemium {
			sum.FreeFreemium++
		}
	}
	return sum
}

// ProgressOf maps a lifecycle event to a completion percentage. total is the
// number of entities being researched.
func ProgressOf(e Event, total int) int {
	switch e.Type {
	case EventStageStarted:
		switch e.Stage {
		case StageExtraction:
			return 20
		case StageResearch:
			return 40
		case StageRecommendation:
			return 70
		}
	case EventStageCompleted:
		switch e.Stage {
		case StageExtraction:
			return 40
		case StageResearch:
			return 70
		case StageRecommendation:
			return 90
		}
	case EventEntityStarted, EventEntityCompleted:
		if total <= 0 {
			return 40
		}
		i := e.Index
		if e.Type == EventEntityCompleted {
			i++
		}
		return 40 + i*30/total
	case EventRunCompleted, EventRunFailed:
		return 100
	}
	return 0
}
