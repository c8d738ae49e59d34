package research

import (
	"time"

	"go.uber.org/zap"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventStageStarted    EventType = "stage_started"
	EventStageCompleted  EventType = "stage_completed"
	EventEntityStarted   EventType = "entity_started"
	EventEntityCompleted EventType = "entity_completed"
	EventRunCompleted    EventType = "run_completed"
	EventRunFailed       EventType = "run_failed"
)

// Stage names.
const (
	StageExtraction     = "extract_tools"
	StageResearch       = "research"
	StageRecommendation = "analyze"
)

// Event is a lifecycle notification. Progress is 0-100.
type Event struct {
	RunID     string       `json:"run_id"`
	Type      EventType    `json:"type"`
	Stage     string       `json:"stage,omitempty"`
	Index     int          `json:"index"`
	Total     int          `json:"total,omitempty"`
	Entity    string       `json:"entity,omitempty"`
	Source    RecordSource `json:"source,omitempty"`
	Status    Status       `json:"status,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Message   string       `json:"message,omitempty"`
	Progress  int          `json:"progress"`
	Timestamp time.Time    `json:"timestamp"`
}

// ProgressSink receives lifecycle events in order. Implementations must not
// block for long; a sink never changes the outcome of a run.
type ProgressSink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(e Event) { f(e) }

// NopSink discards events.
type NopSink struct{}

func (NopSink) OnEvent(Event) {}

// MultiSink fans an event out to several sinks in order.
type MultiSink []ProgressSink

func (m MultiSink) OnEvent(e Event) {
	for _, s := range m {
		if s != nil {
			s.OnEvent(e)
		}
	}
}

// emit delivers e to sink, recovering from a panicking sink.
func emit(logger *zap.Logger, sink ProgressSink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress sink panicked",
				zap.String("run_id", e.RunID),
				zap.String("event", string(e.Type)),
				zap.Any("panic", r))
		}
	}()
	sink.OnEvent(e)
}
