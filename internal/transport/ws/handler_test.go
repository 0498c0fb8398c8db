package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

type mockManager struct {
	mu        sync.Mutex
	started   []domain.SessionMode
	processed [][]byte
	ended     []string
	startErr  error
	chunkErr  error
	update    domain.TranscriptionUpdate
	summary   domain.SessionSummary
	data      domain.SessionData
	hasData   bool
}

func (m *mockManager) Start(_ context.Context, _ string, mode domain.SessionMode) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, mode)
	if m.startErr != nil {
		return "", m.startErr
	}
	if mode == domain.ModeAssistant {
		return domain.EngineStream, nil
	}
	return domain.EngineBatch, nil
}

func (m *mockManager) ProcessChunk(_ context.Context, sessionID string, audio []byte) (domain.TranscriptionUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, audio)
	if m.chunkErr != nil {
		return domain.TranscriptionUpdate{}, m.chunkErr
	}
	update := m.update
	update.SessionID = sessionID
	return update, nil
}

func (m *mockManager) End(sessionID string) domain.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, sessionID)
	return m.summary
}

func (m *mockManager) Get(sessionID string) (domain.SessionData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.data
	data.SessionID = sessionID
	return data, m.hasData
}

func (m *mockManager) endCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ended)
}

func dial(t *testing.T, manager *mockManager) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(manager, zap.NewNop()))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd command) {
	t.Helper()
	payload, _ := json.Marshal(cmd)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("send command: %v", err)
	}
}

func TestStartSession_AssistantMode(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "start_session", Mode: "ai_assistant"})
	event := readEvent(t, conn)

	if event["type"] != "session_started" {
		t.Fatalf("type = %v", event["type"])
	}
	if event["status"] != "ready" || event["mode"] != "ai_assistant" || event["engine"] != "stream" {
		t.Errorf("event = %v", event)
	}
	if event["session_id"] == "" {
		t.Error("missing session_id")
	}
}

func TestStartSession_UnknownModeDefaultsToAssistant(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "start_session", Mode: "something_else"})
	event := readEvent(t, conn)

	if event["mode"] != "ai_assistant" {
		t.Errorf("mode = %v, want ai_assistant", event["mode"])
	}
}

func TestStartSession_StandardMode(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "start_session", Mode: "standard"})
	event := readEvent(t, conn)

	if event["mode"] != "standard" || event["engine"] != "batch" {
		t.Errorf("event = %v", event)
	}
}

func TestBinaryFrame_EmitsTranscriptionUpdate(t *testing.T) {
	manager := &mockManager{update: domain.TranscriptionUpdate{
		Transcription:  "hello world",
		FullTranscript: "hello world",
		Confidence:     0.9,
		IsFinal:        true,
		Engine:         domain.EngineStream,
	}}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	event := readEvent(t, conn)

	if event["type"] != "transcription_update" {
		t.Fatalf("type = %v", event["type"])
	}
	if event["transcription"] != "hello world" {
		t.Errorf("transcription = %v", event["transcription"])
	}
	if event["engine"] != "stream" {
		t.Errorf("engine = %v", event["engine"])
	}

	manager.mu.Lock()
	defer manager.mu.Unlock()
	if len(manager.processed) != 1 || len(manager.processed[0]) != 3 {
		t.Errorf("processed = %v", manager.processed)
	}
}

func TestBinaryFrame_TransientErrorKeepsConnection(t *testing.T) {
	manager := &mockManager{chunkErr: domain.ErrAudioConversion}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	event := readEvent(t, conn)

	if event["type"] != "error" {
		t.Fatalf("type = %v", event["type"])
	}

	// Connection survives: a later command still gets a response.
	manager.mu.Lock()
	manager.chunkErr = nil
	manager.mu.Unlock()
	sendCommand(t, conn, command{Command: "start_session"})
	if event := readEvent(t, conn); event["type"] != "session_started" {
		t.Errorf("type after transient error = %v", event["type"])
	}
}

func TestEndSession_EmitsSummaryAndCloses(t *testing.T) {
	manager := &mockManager{summary: domain.SessionSummary{
		FinalTranscript:  "all done",
		Duration:         90 * time.Second,
		TotalSuggestions: 2,
	}}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "end_session"})
	event := readEvent(t, conn)

	if event["type"] != "session_ended" {
		t.Fatalf("type = %v", event["type"])
	}
	if event["final_transcript"] != "all done" {
		t.Errorf("final_transcript = %v", event["final_transcript"])
	}
	if event["duration_sec"] != 90.0 {
		t.Errorf("duration_sec = %v", event["duration_sec"])
	}
	if event["total_suggestions"] != 2.0 {
		t.Errorf("total_suggestions = %v", event["total_suggestions"])
	}

	// Server closes after end_session; read returns an error.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection close after end_session")
	}
}

func TestGetSession_ReturnsSnapshot(t *testing.T) {
	manager := &mockManager{
		hasData: true,
		data: domain.SessionData{
			State:          "active",
			Mode:           domain.ModeAssistant,
			Engine:         domain.EngineStream,
			FullTranscript: "so far so good",
		},
	}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "get_session"})
	event := readEvent(t, conn)

	if event["type"] != "session_data" {
		t.Fatalf("type = %v", event["type"])
	}
	if event["full_transcript"] != "so far so good" {
		t.Errorf("full_transcript = %v", event["full_transcript"])
	}
	if event["state"] != "active" {
		t.Errorf("state = %v", event["state"])
	}
}

func TestGetSession_UnknownSession(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "get_session"})
	event := readEvent(t, conn)

	if event["type"] != "error" {
		t.Fatalf("type = %v", event["type"])
	}
}

func TestUnknownCommand_EmitsError(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)
	defer cleanup()

	sendCommand(t, conn, command{Command: "bogus"})
	event := readEvent(t, conn)

	if event["type"] != "error" || event["error"] != "unknown command" {
		t.Errorf("event = %v", event)
	}
}

func TestDisconnect_TriggersTeardown(t *testing.T) {
	manager := &mockManager{}
	conn, cleanup := dial(t, manager)

	sendCommand(t, conn, command{Command: "start_session"})
	readEvent(t, conn)
	cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for manager.endCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if manager.endCount() == 0 {
		t.Fatal("End not called after disconnect")
	}
}
