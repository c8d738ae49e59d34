package streaming

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/metrics"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Event is a research lifecycle event with a per-run sequence number, used by
// SSE and WebSocket replay.
type Event struct {
	research.Event
	Seq uint64 `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Terminal reports whether the event ends its run's stream.
func (e Event) Terminal() bool {
	return e.Type == research.EventRunCompleted || e.Type == research.EventRunFailed
}

// Mirror receives every published event after sequencing.
type Mirror interface {
	Mirror(Event)
}

// Config sizes the in-memory history.
type Config struct {
	Capacity int `mapstructure:"capacity"` // events kept per run
	MaxRuns  int `mapstructure:"max_runs"` // runs kept before the oldest is evicted
}

const (
	defaultCapacity = 256
	defaultMaxRuns  = 1024
)

// Manager provides in-memory pub/sub for run events. It implements
// research.ProgressSink, keyed by Event.RunID.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-run ring buffer for replay and Last-Event-ID support
	history  map[string]*ring
	order    []string
	capacity int
	maxRuns  int
	mirrors  []Mirror
	logger   *zap.Logger
}

// NewManager creates a manager. Mirrors receive events in publish order.
func NewManager(cfg Config, logger *zap.Logger, mirrors ...Mirror) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = defaultMaxRuns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    cfg.Capacity,
		maxRuns:     cfg.MaxRuns,
		mirrors:     mirrors,
		logger:      logger,
	}
}

// Subscribe adds a subscriber channel for runID; caller must drain and call Unsubscribe.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subscribers[runID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	metrics.StreamSubscribers.Dec()
	if len(subs) == 0 {
		delete(m.subscribers, runID)
	}
}

// OnEvent implements research.ProgressSink.
func (m *Manager) OnEvent(e research.Event) {
	m.Publish(e)
}

// Publish sequences e and sends it to all subscribers of its run (non-blocking).
func (m *Manager) Publish(e research.Event) Event {
	m.mu.Lock()
	rg := m.history[e.RunID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[e.RunID] = rg
		m.order = append(m.order, e.RunID)
		m.evictLocked()
	}
	rg.nextSeq++
	evt := Event{Event: e, Seq: rg.nextSeq}
	rg.push(evt)
	for ch := range m.subscribers[e.RunID] {
		select {
		case ch <- evt:
		default:
			metrics.StreamEventsDropped.Inc()
			m.logger.Debug("dropping event for slow subscriber",
				zap.String("run_id", e.RunID), zap.Uint64("seq", evt.Seq))
		}
	}
	m.mu.Unlock()

	for _, mirror := range m.mirrors {
		mirror.Mirror(evt)
	}
	return evt
}

// evictLocked drops history of the oldest runs without subscribers.
func (m *Manager) evictLocked() {
	for len(m.order) > m.maxRuns {
		victim := -1
		for i, id := range m.order {
			if len(m.subscribers[id]) == 0 {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		delete(m.history, m.order[victim])
		m.order = append(m.order[:victim], m.order[victim+1:]...)
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[runID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Finished reports whether the run's terminal event has been published.
func (m *Manager) Finished(runID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[runID]
	return rg != nil && rg.count > 0 && rg.last().Terminal()
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) last() Event {
	return r.buf[(r.start+r.count-1)%len(r.buf)]
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
