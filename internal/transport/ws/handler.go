// Package ws exposes live transcription sessions over a WebSocket: binary
// frames carry audio chunks, text frames carry session commands, and every
// server message is a tagged JSON event.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

const writeWait = 10 * time.Second

// Commands accepted on text frames.
const (
	cmdStartSession = "start_session"
	cmdEndSession   = "end_session"
	cmdGetSession   = "get_session"
)

// Event types sent to the client.
const (
	evtSessionStarted      = "session_started"
	evtTranscriptionUpdate = "transcription_update"
	evtSessionEnded        = "session_ended"
	evtSessionData         = "session_data"
	evtError               = "error"
)

// SessionManager is the slice of the realtime manager the transport needs (ISP).
type SessionManager interface {
	Start(ctx context.Context, sessionID string, mode domain.SessionMode) (string, error)
	ProcessChunk(ctx context.Context, sessionID string, audio []byte) (domain.TranscriptionUpdate, error)
	End(sessionID string) domain.SessionSummary
	Get(sessionID string) (domain.SessionData, bool)
}

type command struct {
	Command string `json:"command"`
	Mode    string `json:"mode"`
}

type startedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Mode      string `json:"mode"`
	Engine    string `json:"engine"`
}

type updateEvent struct {
	Type string `json:"type"`
	domain.TranscriptionUpdate
}

type endedEvent struct {
	Type             string  `json:"type"`
	SessionID        string  `json:"session_id"`
	FinalTranscript  string  `json:"final_transcript"`
	DurationSec      float64 `json:"duration_sec"`
	TotalSuggestions int     `json:"total_suggestions"`
}

type dataEvent struct {
	Type string `json:"type"`
	domain.SessionData
}

type errorEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	manager  SessionManager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(manager SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 4 * 1024,
			// Browser clients connect from a separate origin in every known
			// deployment; auth happens at the session layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.New().String()
	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("websocket connected")

	// End is idempotent, so unconditional teardown on disconnect is safe even
	// when the client already sent end_session.
	defer func() {
		h.manager.End(sessionID)
		_ = conn.Close()
		logger.Info("websocket closed")
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if done := h.handleAudio(r.Context(), conn, sessionID, payload, logger); done {
				return
			}
		case websocket.TextMessage:
			if done := h.handleCommand(r.Context(), conn, sessionID, payload, logger); done {
				return
			}
		}
	}
}

// handleAudio processes one audio chunk. Returns true when the connection
// should close.
func (h *Handler) handleAudio(
	ctx context.Context,
	conn *websocket.Conn,
	sessionID string,
	audio []byte,
	logger *zap.Logger,
) bool {
	update, err := h.manager.ProcessChunk(ctx, sessionID, audio)
	if err != nil {
		if errors.Is(err, domain.ErrSessionEnded) {
			h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: err.Error()}, logger)
			return true
		}
		logger.Error("chunk processing failed", zap.Error(err))
		h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: "audio processing failed"}, logger)
		return false
	}

	return !h.send(conn, updateEvent{Type: evtTranscriptionUpdate, TranscriptionUpdate: update}, logger)
}

// handleCommand dispatches one text command. Returns true when the connection
// should close.
func (h *Handler) handleCommand(
	ctx context.Context,
	conn *websocket.Conn,
	sessionID string,
	payload []byte,
	logger *zap.Logger,
) bool {
	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: "invalid command frame"}, logger)
		return false
	}

	switch cmd.Command {
	case cmdStartSession:
		mode := domain.SessionMode(cmd.Mode)
		if mode != domain.ModeStandard {
			mode = domain.ModeAssistant
		}
		engine, err := h.manager.Start(ctx, sessionID, mode)
		if err != nil {
			h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: err.Error()}, logger)
			return errors.Is(err, domain.ErrSessionEnded)
		}
		logger.Info("session started", zap.String("mode", string(mode)), zap.String("engine", engine))
		return !h.send(conn, startedEvent{
			Type:      evtSessionStarted,
			SessionID: sessionID,
			Status:    "ready",
			Mode:      string(mode),
			Engine:    engine,
		}, logger)

	case cmdEndSession:
		summary := h.manager.End(sessionID)
		h.send(conn, endedEvent{
			Type:             evtSessionEnded,
			SessionID:        sessionID,
			FinalTranscript:  summary.FinalTranscript,
			DurationSec:      summary.Duration.Seconds(),
			TotalSuggestions: summary.TotalSuggestions,
		}, logger)
		return true

	case cmdGetSession:
		data, ok := h.manager.Get(sessionID)
		if !ok {
			h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: "session not found"}, logger)
			return false
		}
		return !h.send(conn, dataEvent{Type: evtSessionData, SessionData: data}, logger)

	default:
		h.send(conn, errorEvent{Type: evtError, SessionID: sessionID, Error: "unknown command"}, logger)
		return false
	}
}

// send writes one JSON event. Returns false when the write failed and the
// connection is unusable.
func (h *Handler) send(conn *websocket.Conn, event any, logger *zap.Logger) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(event); err != nil {
		logger.Warn("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
