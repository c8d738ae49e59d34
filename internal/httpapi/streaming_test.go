package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/toolscout/internal/research"
	"github.com/Kocoro-lab/toolscout/internal/streaming"
)

func publishRun(mgr *streaming.Manager, runID string) {
	mgr.Publish(research.Event{RunID: runID, Type: research.EventStageStarted, Stage: research.StageExtraction, Progress: 20})
	mgr.Publish(research.Event{RunID: runID, Type: research.EventStageCompleted, Stage: research.StageExtraction, Progress: 40})
	mgr.Publish(research.Event{RunID: runID, Type: research.EventRunCompleted, Status: research.StatusCompleted, Progress: 100})
}

func newStreamingServer(t *testing.T) (*streaming.Manager, *httptest.Server) {
	mgr := streaming.NewManager(streaming.Config{}, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zaptest.NewLogger(t)).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return mgr, srv
}

func TestSSERequiresRunID(t *testing.T) {
	mgr := streaming.NewManager(streaming.Config{}, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zaptest.NewLogger(t)).RegisterRoutes(mux)

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/stream/sse", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/stream/sse?run_id=r&last_event_id=x", "").Code)
}

func TestSSEReplaysFinishedRun(t *testing.T) {
	mgr := streaming.NewManager(streaming.Config{}, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zaptest.NewLogger(t)).RegisterRoutes(mux)
	publishRun(mgr, "r1")

	rec := do(mux, http.MethodGet, "/stream/sse?run_id=r1", "")
	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "id: 1\nevent: stage_started\n")
	assert.Contains(t, body, "id: 3\nevent: run_completed\n")

	rec = do(mux, http.MethodGet, "/stream/sse?run_id=r1&last_event_id=2", "")
	assert.NotContains(t, rec.Body.String(), "id: 1\n")
	assert.Contains(t, rec.Body.String(), "id: 3\n")

	rec = do(mux, http.MethodGet, "/stream/sse?run_id=r1&types=run_completed", "")
	assert.NotContains(t, rec.Body.String(), "stage_started")
	assert.Contains(t, rec.Body.String(), "run_completed")

	// resuming after the terminal event returns instead of hanging
	rec = do(mux, http.MethodGet, "/stream/sse?run_id=r1&last_event_id=3", "")
	assert.NotContains(t, rec.Body.String(), "id: ")
	assert.Contains(t, rec.Body.String(), ": connected to run r1")
}

func TestSSELiveEventsCloseOnTerminal(t *testing.T) {
	mgr, srv := newStreamingServer(t)

	resp, err := http.Get(srv.URL + "/stream/sse?run_id=live")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, ": connected"))

	publishRun(mgr, "live")

	var events []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	assert.Equal(t, []string{"stage_started", "stage_completed", "run_completed"}, events)
}

func TestWebSocketReplayAndClose(t *testing.T) {
	mgr, srv := newStreamingServer(t)
	mgr.Publish(research.Event{RunID: "ws", Type: research.EventStageStarted, Stage: research.StageExtraction, Progress: 20})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/ws?run_id=ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first streaming.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, research.EventStageStarted, first.Type)

	mgr.Publish(research.Event{RunID: "ws", Type: research.EventRunFailed, Status: research.StatusFailed, Reason: "boom", Progress: 100})
	var last streaming.Event
	require.NoError(t, conn.ReadJSON(&last))
	assert.Equal(t, uint64(2), last.Seq)
	assert.Equal(t, "boom", last.Reason)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
