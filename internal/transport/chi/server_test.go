package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/chat"
	"github.com/meetscribe/meetscribe/internal/domain"
)

type mockIndexer struct {
	results    []domain.ScoredChunk
	searchErr  error
	rebuildErr error
	size       int
	lastTopK   int
	rebuilt    []domain.Meeting
}

func (m *mockIndexer) SearchSimilar(_ context.Context, _ string, topK int) ([]domain.ScoredChunk, error) {
	m.lastTopK = topK
	return m.results, m.searchErr
}

func (m *mockIndexer) Rebuild(_ context.Context, meetings []domain.Meeting) error {
	m.rebuilt = meetings
	return m.rebuildErr
}

func (m *mockIndexer) Len() int { return m.size }

type mockMeetings struct {
	all []domain.Meeting
	err error
}

func (m *mockMeetings) Get(_ context.Context, id string) (domain.Meeting, error) {
	for _, mt := range m.all {
		if mt.ID == id {
			return mt, nil
		}
	}
	return domain.Meeting{}, domain.ErrMeetingNotFound
}

func (m *mockMeetings) All(_ context.Context) ([]domain.Meeting, error) { return m.all, m.err }

func (m *mockMeetings) Recent(_ context.Context, n int) ([]domain.Meeting, error) {
	if n > len(m.all) {
		n = len(m.all)
	}
	return m.all[:n], nil
}

type mockSessions struct{ cleared int }

func (m *mockSessions) ClearAll() int { return m.cleared }

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(context.Context) error { return m.err }

type mockGenerator struct {
	response string
	err      error
}

func (m *mockGenerator) Generate(context.Context, string) (string, error) {
	return m.response, m.err
}

func newTestServer(idx *mockIndexer, meetings *mockMeetings, gen *mockGenerator, ping *mockPinger) http.Handler {
	return newTestServerWithChecker(idx, meetings, gen, ping, &mockChecker{})
}

func newTestServerWithChecker(
	idx *mockIndexer, meetings *mockMeetings, gen *mockGenerator,
	ping *mockPinger, checker *mockChecker,
) http.Handler {
	chatSvc := chat.NewService(idx, meetings, gen, chat.Options{
		SearchTopK:      10,
		RecentFallback:  5,
		ContextMeetings: 5,
		ExcerptChars:    500,
	}, zap.NewNop())

	s := NewServer(chatSvc, idx, meetings, &mockSessions{cleared: 3}, ping, checker, 5, zap.NewNop())
	r := chirouter.NewRouter()
	s.Routes(r)
	return r
}

func defaultFixtures() (*mockIndexer, *mockMeetings, *mockGenerator, *mockPinger) {
	idx := &mockIndexer{
		results: []domain.ScoredChunk{
			{Chunk: domain.Chunk{Text: "budget talk", MeetingID: "m1", MeetingTitle: "Budget Review"}, Similarity: 0.9},
		},
		size: 12,
	}
	meetings := &mockMeetings{all: []domain.Meeting{{ID: "m1", Title: "Budget Review"}}}
	gen := &mockGenerator{response: "The budget was approved."}
	return idx, meetings, gen, &mockPinger{}
}

func TestChatQuery_OK(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	body := strings.NewReader(`{"query":"what about the budget"}`)
	req := httptest.NewRequest("POST", "/v1/chat/query", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var result chat.Result
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Response != "The budget was approved." {
		t.Errorf("response = %q", result.Response)
	}
	if result.MeetingsFound != 1 {
		t.Errorf("meetings_found = %d, want 1", result.MeetingsFound)
	}
}

func TestChatQuery_InvalidBody_400(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("POST", "/v1/chat/query", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestChatQuery_EmptyQuery_400(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("POST", "/v1/chat/query", strings.NewReader(`{"query":""}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestChatQuery_ProviderError_502(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	gen.err = domain.ErrGenerationProviderError
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("POST", "/v1/chat/query", strings.NewReader(`{"query":"budget"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeProviderError {
		t.Errorf("code = %q, want %q", errResp.Code, codeProviderError)
	}
}

func TestSearch_OK(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("GET", "/v1/search?query=budget&top_k=3", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if idx.lastTopK != 3 {
		t.Errorf("topK = %d, want 3", idx.lastTopK)
	}

	var resp struct {
		Results []domain.ScoredChunk `json:"results"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].MeetingID != "m1" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearch_DefaultsTopK(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("GET", "/v1/search?query=budget", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if idx.lastTopK != 5 {
		t.Errorf("topK = %d, want configured default 5", idx.lastTopK)
	}
}

func TestSearch_MissingQuery_400(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("GET", "/v1/search", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSearch_BadTopK_400(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("GET", "/v1/search?query=x&top_k=zero", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSearch_EmptyIndexReturnsEmptyArray(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	idx.results = nil
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("GET", "/v1/search?query=budget", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"results":[]`) {
		t.Errorf("body = %s, want empty results array", rr.Body.String())
	}
}

func TestRebuildIndex_OK(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("POST", "/v1/index/rebuild", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(idx.rebuilt) != 1 {
		t.Errorf("rebuilt with %d meetings, want 1", len(idx.rebuilt))
	}

	var resp struct {
		Chunks int `json:"chunks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Chunks != 12 {
		t.Errorf("chunks = %d, want 12", resp.Chunks)
	}
}

func TestRebuildIndex_EmbedderDown_502(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	idx.rebuildErr = domain.ErrEmbeddingProviderError
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("POST", "/v1/index/rebuild", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestClearSessions_OK(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("POST", "/v1/sessions/clear", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Cleared int `json:"cleared_sessions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cleared != 3 {
		t.Errorf("cleared = %d, want 3", resp.Cleared)
	}
}

func TestHealth_OK(t *testing.T) {
	handler := newTestServer(defaultFixtures())

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestHealth_StorageDown_503(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	ping.err = context.DeadlineExceeded
	handler := newTestServer(idx, meetings, gen, ping)

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"storage":"error"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestHealth_EmbeddingDown_Degraded(t *testing.T) {
	idx, meetings, gen, ping := defaultFixtures()
	handler := newTestServerWithChecker(idx, meetings, gen, ping,
		&mockChecker{err: errors.New("provider down")})

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"status":"degraded"`) {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(body, `"embedding":"error"`) {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(body, `"storage":"ok"`) {
		t.Errorf("body = %s", body)
	}
}
