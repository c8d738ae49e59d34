package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

func event(runID string, typ research.EventType) research.Event {
	return research.Event{RunID: runID, Type: typ, Timestamp: time.Now()}
}

func TestRingReplaySince(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 4; i++ {
		r.push(Event{Seq: uint64(i + 1)})
	}
	evs := r.since(0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[2].Seq)

	evs = r.since(2)
	require.Len(t, evs, 2)
	assert.Equal(t, uint64(3), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[1].Seq)
}

func TestManagerPublishSubscribe(t *testing.T) {
	m := NewManager(Config{}, zaptest.NewLogger(t))
	ch := m.Subscribe("run-1", 4)

	m.OnEvent(event("run-1", research.EventStageStarted))
	m.OnEvent(event("run-2", research.EventStageStarted))
	m.OnEvent(event("run-1", research.EventRunCompleted))

	first := <-ch
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, research.EventStageStarted, first.Type)
	second := <-ch
	assert.Equal(t, uint64(2), second.Seq)
	assert.True(t, second.Terminal())
	assert.True(t, m.Finished("run-1"))
	assert.False(t, m.Finished("run-2"))

	m.Unsubscribe("run-1", ch)
	_, open := <-ch
	assert.False(t, open)
	m.Unsubscribe("run-1", ch)
}

func TestManagerReplaySince(t *testing.T) {
	m := NewManager(Config{Capacity: 5}, zaptest.NewLogger(t))
	for i := 0; i < 8; i++ {
		m.Publish(event("wf", research.EventEntityCompleted))
	}
	evs := m.ReplaySince("wf", 5)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(6), evs[0].Seq)
	assert.Len(t, m.ReplaySince("wf", 0), 5)
	assert.Nil(t, m.ReplaySince("unknown", 0))
}

func TestManagerDropsForSlowSubscriber(t *testing.T) {
	m := NewManager(Config{}, zaptest.NewLogger(t))
	ch := m.Subscribe("run", 1)
	defer m.Unsubscribe("run", ch)

	for i := 0; i < 3; i++ {
		m.Publish(event("run", research.EventEntityStarted))
	}
	assert.Len(t, ch, 1)
	assert.Len(t, m.ReplaySince("run", 0), 3)
}

func TestManagerEvictsOldestRuns(t *testing.T) {
	m := NewManager(Config{MaxRuns: 2}, zaptest.NewLogger(t))
	held := m.Subscribe("a", 8)
	defer m.Unsubscribe("a", held)

	m.Publish(event("a", research.EventStageStarted))
	m.Publish(event("b", research.EventStageStarted))
	m.Publish(event("c", research.EventStageStarted))

	assert.NotEmpty(t, m.ReplaySince("a", 0))
	assert.Nil(t, m.ReplaySince("b", 0))
	assert.NotEmpty(t, m.ReplaySince("c", 0))
}

type recordingMirror struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingMirror) Mirror(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestManagerMirrors(t *testing.T) {
	mirror := &recordingMirror{}
	m := NewManager(Config{}, zaptest.NewLogger(t), mirror)
	m.Publish(event("r", research.EventStageStarted))
	m.Publish(event("r", research.EventRunFailed))

	require.Len(t, mirror.events, 2)
	assert.Equal(t, uint64(2), mirror.events[1].Seq)
	assert.Contains(t, string(mirror.events[1].Marshal()), `"type":"run_failed"`)
	assert.Contains(t, string(mirror.events[1].Marshal()), `"seq":2`)
}
