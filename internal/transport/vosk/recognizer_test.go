package vosk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// fakeServer speaks the vosk-server protocol: config frame, then one JSON
// answer per binary frame, then a flush on eof.
func fakeServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			t.Errorf("expected config text frame first, got type %d", mt)
		}
		var cfg struct {
			Config struct {
				SampleRate int `json:"sample_rate"`
			} `json:"config"`
		}
		if err := json.Unmarshal(msg, &cfg); err != nil || cfg.Config.SampleRate == 0 {
			t.Errorf("bad config frame: %s", msg)
		}

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && strings.Contains(string(msg), "eof") {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"text": ""}`))
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(answer))
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestFeed_FinalResult(t *testing.T) {
	srv := fakeServer(t, `{"text": "hello there", "result": [{"conf": 0.9, "word": "hello"}, {"conf": 0.7, "word": "there"}]}`)
	defer srv.Close()

	f := NewFactory(wsURL(srv), time.Second, zap.NewNop())
	rec, err := f.CreateRecognizer(context.Background(), 16000)
	if err != nil {
		t.Fatalf("create recognizer: %v", err)
	}
	defer rec.Close()

	if !f.Ready() {
		t.Error("factory must report ready after a successful dial")
	}

	res, err := rec.Feed(context.Background(), []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if res.Text != "hello there" || !res.IsFinal {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("expected averaged confidence 0.8, got %f", res.Confidence)
	}
}

func TestFeed_PartialResult(t *testing.T) {
	srv := fakeServer(t, `{"partial": "hel"}`)
	defer srv.Close()

	f := NewFactory(wsURL(srv), time.Second, zap.NewNop())
	rec, err := f.CreateRecognizer(context.Background(), 16000)
	if err != nil {
		t.Fatalf("create recognizer: %v", err)
	}
	defer rec.Close()

	res, err := rec.Feed(context.Background(), []byte{0, 0})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if res.IsFinal {
		t.Error("partial result must not be final")
	}
	if res.Text != "hel" {
		t.Errorf("unexpected partial text: %q", res.Text)
	}
}

func TestFeed_EmptyFrameIsNoop(t *testing.T) {
	srv := fakeServer(t, `{"text": "unused"}`)
	defer srv.Close()

	f := NewFactory(wsURL(srv), time.Second, zap.NewNop())
	rec, err := f.CreateRecognizer(context.Background(), 16000)
	if err != nil {
		t.Fatalf("create recognizer: %v", err)
	}
	defer rec.Close()

	res, err := rec.Feed(context.Background(), nil)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if res.Text != "" || res.IsFinal {
		t.Errorf("expected empty result for empty frame, got %+v", res)
	}
}

func TestCreateRecognizer_ServerDown(t *testing.T) {
	f := NewFactory("ws://127.0.0.1:1", 200*time.Millisecond, zap.NewNop())

	if _, err := f.CreateRecognizer(context.Background(), 16000); err == nil {
		t.Fatal("expected dial error")
	}
	if f.Ready() {
		t.Error("factory must not report ready after a failed dial")
	}
}

func TestParseResult_DefaultConfidence(t *testing.T) {
	res, err := parseResult([]byte(`{"text": "no word scores"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Confidence != defaultConfidence {
		t.Errorf("expected default confidence %f, got %f", defaultConfidence, res.Confidence)
	}
	if !res.IsFinal {
		t.Error("non-empty text must be final")
	}
}

func TestParseResult_Garbage(t *testing.T) {
	if _, err := parseResult([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
