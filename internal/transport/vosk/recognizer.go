// Package vosk streams raw PCM to a vosk-server over its websocket protocol:
// one JSON config message, then binary audio frames, each answered with either
// a partial ({"partial": ...}) or a final ({"text": ..., "result": [...]})
// JSON document.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// Confidence reported when the server omits per-word scores.
const defaultConfidence = 0.8

// Factory dials a vosk-server and hands out one websocket connection per
// recognizer. Implements domain.RecognizerFactory.
type Factory struct {
	url         string
	dialTimeout time.Duration
	logger      *zap.Logger

	// Flipped on the first successful dial; Ready is a cheap liveness hint
	// for engine selection, not a health check.
	ready atomic.Bool
}

func NewFactory(url string, dialTimeout time.Duration, logger *zap.Logger) *Factory {
	return &Factory{
		url:         url,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// CreateRecognizer opens a dedicated connection and sends the sample-rate
// config frame.
func (f *Factory) CreateRecognizer(ctx context.Context, sampleRate int) (domain.StreamRecognizer, error) {
	dialer := websocket.Dialer{HandshakeTimeout: f.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		f.ready.Store(false)
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w: %w", f.url, resp.StatusCode, domain.ErrRecognizerUnavailable, err)
		}
		return nil, fmt.Errorf("dial %s: %w: %w", f.url, domain.ErrRecognizerUnavailable, err)
	}

	cfg := fmt.Sprintf(`{"config": {"sample_rate": %d, "words": true}}`, sampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfg)); err != nil {
		conn.Close()
		f.ready.Store(false)
		return nil, fmt.Errorf("send config: %w: %w", domain.ErrRecognizerUnavailable, err)
	}

	f.ready.Store(true)
	f.logger.Debug("recognizer created", zap.Int("sample_rate", sampleRate))

	return &recognizer{conn: conn, logger: f.logger}, nil
}

// Ready reports whether the last dial succeeded.
func (f *Factory) Ready() bool {
	return f.ready.Load()
}

// Probe dials and immediately closes a connection, updating readiness.
// Called once at startup so Ready is meaningful before the first session.
func (f *Factory) Probe(ctx context.Context) error {
	rec, err := f.CreateRecognizer(ctx, 16000)
	if err != nil {
		return err
	}
	return rec.Close()
}

type recognizer struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// serverResult is the vosk-server response for one audio frame.
type serverResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
	Result  []struct {
		Conf  float64 `json:"conf"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Word  string  `json:"word"`
	} `json:"result"`
}

// Feed writes one PCM frame and reads the server's answer for it.
func (r *recognizer) Feed(ctx context.Context, pcm []byte) (domain.StreamResult, error) {
	if len(pcm) == 0 {
		return domain.StreamResult{}, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetWriteDeadline(deadline)
		r.conn.SetReadDeadline(deadline)
	}

	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return domain.StreamResult{}, fmt.Errorf("write frame: %w: %w", domain.ErrRecognizerUnavailable, err)
	}

	_, msg, err := r.conn.ReadMessage()
	if err != nil {
		return domain.StreamResult{}, fmt.Errorf("read result: %w: %w", domain.ErrRecognizerUnavailable, err)
	}

	return parseResult(msg)
}

// Close sends the EOF marker, drains the final result, and closes the socket.
func (r *recognizer) Close() error {
	defer r.conn.Close()

	r.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`)); err != nil {
		return fmt.Errorf("send eof: %w", err)
	}
	r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r.conn.ReadMessage() // final flush, result discarded

	return nil
}

func parseResult(msg []byte) (domain.StreamResult, error) {
	var res serverResult
	if err := json.Unmarshal(msg, &res); err != nil {
		return domain.StreamResult{}, fmt.Errorf("parse result %q: %w", msg, err)
	}

	if res.Partial != "" {
		return domain.StreamResult{Text: strings.TrimSpace(res.Partial)}, nil
	}

	out := domain.StreamResult{
		Text:       strings.TrimSpace(res.Text),
		Confidence: defaultConfidence,
		IsFinal:    res.Text != "",
	}
	if len(res.Result) > 0 {
		var sum float64
		for _, w := range res.Result {
			sum += w.Conf
		}
		out.Confidence = sum / float64(len(res.Result))
	}
	return out, nil
}
