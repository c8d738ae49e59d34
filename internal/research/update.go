package research

import "time"

// Update is a typed partial state produced by a stage. Each update owns a
// disjoint set of fields; the reducer never touches anything else.
type Update interface {
	apply(s *ResearchState)
}

// ExtractionUpdate owns ExtractedTools.
type ExtractionUpdate struct {
	Tools []string `json:"tools"`
}

func (u ExtractionUpdate) apply(s *ResearchState) {
	s.ExtractedTools = append([]string{}, u.Tools...)
}

// ResearchUpdate owns Companies.
type ResearchUpdate struct {
	Companies []EntityFactRecord `json:"companies"`
}

func (u ResearchUpdate) apply(s *ResearchState) {
	s.Companies = append([]EntityFactRecord{}, u.Companies...)
}

// RecommendationUpdate owns Recommendation.
type RecommendationUpdate struct {
	Text string `json:"text"`
}

func (u RecommendationUpdate) apply(s *ResearchState) {
	text := u.Text
	s.Recommendation = &text
}

// transition owns Phase, Status and FailureReason. Only the orchestrator issues it.
type transition struct {
	phase  Phase
	status Status
	reason string
	at     time.Time
}

func (u transition) apply(s *ResearchState) {
	if u.phase != "" {
		s.Phase = u.phase
	}
	if u.status != "" {
		s.Status = u.status
		if u.status.Terminal() {
			at := u.at
			s.CompletedAt = &at
		}
	}
	if u.reason != "" {
		s.FailureReason = u.reason
	}
}

// Apply merges u into s.
func Apply(s *ResearchState, u Update) {
	u.apply(s)
}

// Advance returns the transition that moves a state to phase.
func Advance(phase Phase) Update { return transition{phase: phase} }

// Finish returns the transition that puts a state into a terminal status.
func Finish(status Status, reason string, at time.Time) Update {
	return transition{status: status, reason: reason, at: at}
}

// InsufficientData returns the updates that conclude a run with no tools, in
// the order they must be applied: the terminal status first, so the
// recommendation is only ever set on a terminal state or after research.
func InsufficientData(at time.Time) []Update {
	return []Update{
		Finish(StatusInsufficientData, "", at),
		RecommendationUpdate{Text: InsufficientDataMessage},
	}
}
