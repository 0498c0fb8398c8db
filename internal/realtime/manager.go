package realtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
	"github.com/meetscribe/meetscribe/internal/metrics"
)

// Batch results below this confidence never reach the transcript. The batch
// engine reports calibrated per-segment probabilities, so a fixed floor works.
const minBatchConfidence = 0.3

// Options holds session processing policy.
type Options struct {
	SampleRate         int
	MinSuggestionConf  float64
	MinSuggestionChars int
}

// Manager owns all live transcription sessions. Chunk processing is strictly
// sequential within a session and concurrent across sessions.
type Manager struct {
	sessions *sessionStore
	factory  domain.RecognizerFactory
	batch    domain.BatchTranscriber
	convert  Converter
	gate     Gate
	suggest  *Suggester
	opts     Options
	logger   *zap.Logger

	now func() time.Time
}

func NewManager(
	factory domain.RecognizerFactory,
	batch domain.BatchTranscriber,
	convert Converter,
	gate Gate,
	suggest *Suggester,
	opts Options,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		sessions: newSessionStore(),
		factory:  factory,
		batch:    batch,
		convert:  convert,
		gate:     gate,
		suggest:  suggest,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Start creates a session in the given mode and returns the engine it will
// use. Starting an existing active session only reports its engine; the
// transcript is kept.
func (m *Manager) Start(ctx context.Context, sessionID string, mode domain.SessionMode) (string, error) {
	if mode != domain.ModeStandard {
		mode = domain.ModeAssistant
	}

	sess, created := m.sessions.getOrCreate(sessionID, func() *session {
		return &session{
			id:        sessionID,
			mode:      mode,
			state:     domain.SessionActive,
			startTime: m.now(),
		}
	})
	if created {
		metrics.ActiveSessions.Inc()
		m.logger.Info("session started",
			zap.String("session_id", sessionID),
			zap.String("mode", string(mode)),
		)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == domain.SessionEnded {
		return "", domain.ErrSessionEnded
	}

	if sess.mode == domain.ModeAssistant && sess.recognizer == nil && m.factory.Ready() {
		rec, err := m.factory.CreateRecognizer(ctx, m.opts.SampleRate)
		if err != nil {
			// Lazy retry on the first chunk; batch covers the gap.
			m.logger.Warn("streaming recognizer unavailable at start",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		} else {
			sess.recognizer = rec
		}
	}

	return m.engineFor(sess), nil
}

// ProcessChunk recognizes one audio chunk, gates the text, updates the
// transcript, and attaches suggestions. The returned update is always
// well-formed; transient failures are annotated on it instead of failing the
// session.
func (m *Manager) ProcessChunk(ctx context.Context, sessionID string, audio []byte) (domain.TranscriptionUpdate, error) {
	sess, created := m.sessions.getOrCreate(sessionID, func() *session {
		return &session{
			id:        sessionID,
			mode:      domain.ModeAssistant,
			state:     domain.SessionActive,
			startTime: m.now(),
		}
	})
	if created {
		metrics.ActiveSessions.Inc()
	}

	sess.mu.Lock()
	if sess.state == domain.SessionEnded {
		sess.mu.Unlock()
		return domain.TranscriptionUpdate{}, domain.ErrSessionEnded
	}

	text, confidence, isFinal, engine, procErr := m.recognize(ctx, sess, audio)

	update := domain.TranscriptionUpdate{
		SessionID: sessionID,
		Engine:    engine,
		Timestamp: m.now(),
	}

	switch {
	case procErr != nil:
		update.Error = procErr.Error()
		update.FullTranscript = sess.fullTranscript
		metrics.AudioChunksTotal.WithLabelValues(engine, "error").Inc()

	case text == "":
		update.FullTranscript = sess.fullTranscript
		metrics.AudioChunksTotal.WithLabelValues(engine, "empty").Inc()

	default:
		if rule, rejected := m.gate.Inspect(text); rejected {
			// Filtering is a normal outcome, not a transient failure: the
			// update carries no transcription and no error annotation.
			update.FullTranscript = sess.fullTranscript
			metrics.AudioChunksTotal.WithLabelValues(engine, "rejected").Inc()
			metrics.QualityGateRejectionsTotal.WithLabelValues(rule).Inc()
			m.logger.Debug("chunk rejected",
				zap.String("session_id", sessionID),
				zap.String("rule", rule),
			)
			break
		}

		sess.appendText(text, update.Timestamp)
		update.Transcription = text
		update.Confidence = confidence
		update.IsFinal = isFinal
		update.FullTranscript = sess.fullTranscript
		metrics.AudioChunksTotal.WithLabelValues(engine, "accepted").Inc()
	}

	wantSuggestions := update.Transcription != "" &&
		len([]rune(update.Transcription)) >= m.opts.MinSuggestionChars &&
		update.Confidence > m.opts.MinSuggestionConf
	transcript := sess.fullTranscript
	sess.mu.Unlock()

	if !wantSuggestions {
		return update, nil
	}

	// Generation runs outside the session lock so End is never blocked on a
	// slow model call.
	suggestions := m.suggest.Suggest(ctx, update.Transcription, transcript)
	if len(suggestions) == 0 {
		return update, nil
	}

	sess.mu.Lock()
	if sess.state == domain.SessionEnded {
		// Session tore down while generating; the result is discarded.
		sess.mu.Unlock()
		return update, nil
	}
	sess.suggestions = append(sess.suggestions, suggestions...)
	sess.mu.Unlock()

	update.Suggestions = suggestions
	return update, nil
}

// recognize routes one chunk to the session's engine. Assistant mode falls
// back to the batch engine per chunk when the streaming recognizer cannot
// serve. Caller holds sess.mu.
func (m *Manager) recognize(ctx context.Context, sess *session, audio []byte) (
	text string, confidence float64, isFinal bool, engine string, err error,
) {
	if sess.mode == domain.ModeAssistant {
		if sess.recognizer == nil && m.factory.Ready() {
			rec, createErr := m.factory.CreateRecognizer(ctx, m.opts.SampleRate)
			if createErr != nil {
				m.logger.Warn("recognizer creation failed, using batch engine",
					zap.String("session_id", sess.id),
					zap.Error(createErr),
				)
			} else {
				sess.recognizer = rec
			}
		}

		if sess.recognizer != nil {
			text, confidence, isFinal, err = m.recognizeStream(ctx, sess, audio)
			if err == nil {
				return text, confidence, isFinal, domain.EngineStream, nil
			}
			if !errors.Is(err, domain.ErrAudioConversion) {
				// Drop the broken recognizer; this chunk and the next ones
				// go through batch until a new one can be created.
				sess.recognizer.Close()
				sess.recognizer = nil
			}
			m.logger.Warn("streaming recognition failed, falling back to batch",
				zap.String("session_id", sess.id),
				zap.Error(err),
			)
		}
	}

	text, confidence, isFinal, err = m.recognizeBatch(ctx, audio)
	return text, confidence, isFinal, domain.EngineBatch, err
}

func (m *Manager) recognizeStream(ctx context.Context, sess *session, audio []byte) (string, float64, bool, error) {
	pcm, err := m.convert.ToPCM(ctx, audio, m.opts.SampleRate)
	if err != nil {
		return "", 0, false, fmt.Errorf("convert chunk: %w", err)
	}

	res, err := sess.recognizer.Feed(ctx, pcm)
	if err != nil {
		return "", 0, false, fmt.Errorf("feed recognizer: %w", err)
	}
	return res.Text, res.Confidence, res.IsFinal, nil
}

func (m *Manager) recognizeBatch(ctx context.Context, audio []byte) (string, float64, bool, error) {
	path, err := m.convert.SpoolFile(audio)
	if err != nil {
		return "", 0, false, fmt.Errorf("spool chunk: %w", err)
	}
	defer os.Remove(path)

	res, err := m.batch.Transcribe(ctx, path)
	if err != nil {
		return "", 0, false, fmt.Errorf("batch transcribe: %w", err)
	}
	if res.Text != "" && res.Confidence < minBatchConfidence {
		return "", res.Confidence, false, nil
	}
	return res.Text, res.Confidence, true, nil
}

// End finalizes a session and returns its summary. Idempotent: ending an
// unknown or already-ended session yields the zero summary.
func (m *Manager) End(sessionID string) domain.SessionSummary {
	sess, ok := m.sessions.remove(sessionID)
	if !ok {
		return domain.SessionSummary{}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == domain.SessionEnded {
		return domain.SessionSummary{}
	}
	sess.state = domain.SessionEnded

	if sess.recognizer != nil {
		if err := sess.recognizer.Close(); err != nil {
			m.logger.Warn("recognizer close failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		sess.recognizer = nil
	}

	metrics.ActiveSessions.Dec()
	m.logger.Info("session ended",
		zap.String("session_id", sessionID),
		zap.Int("suggestions", len(sess.suggestions)),
	)

	return domain.SessionSummary{
		SessionID:        sessionID,
		FinalTranscript:  sess.fullTranscript,
		Duration:         m.now().Sub(sess.startTime),
		TotalSuggestions: len(sess.suggestions),
	}
}

// Get returns a point-in-time snapshot of a live session.
func (m *Manager) Get(sessionID string) (domain.SessionData, bool) {
	sess, ok := m.sessions.get(sessionID)
	if !ok {
		return domain.SessionData{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(m.engineFor(sess)), true
}

// ClearAll ends every session and discards buffered state. Operator reset.
func (m *Manager) ClearAll() int {
	sessions := m.sessions.drain()
	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.state != domain.SessionEnded {
			sess.state = domain.SessionEnded
			if sess.recognizer != nil {
				sess.recognizer.Close()
				sess.recognizer = nil
			}
			metrics.ActiveSessions.Dec()
		}
		sess.mu.Unlock()
	}

	if len(sessions) > 0 {
		m.logger.Info("all sessions cleared", zap.Int("count", len(sessions)))
	}
	return len(sessions)
}

// engineFor reports the engine the next chunk would use. Caller holds sess.mu.
func (m *Manager) engineFor(sess *session) string {
	if sess.mode == domain.ModeAssistant && (sess.recognizer != nil || m.factory.Ready()) {
		return domain.EngineStream
	}
	return domain.EngineBatch
}
