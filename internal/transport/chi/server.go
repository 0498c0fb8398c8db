// Package chi exposes the HTTP API: chat queries, semantic search, index
// rebuild, session administration, and health.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/chat"
	"github.com/meetscribe/meetscribe/internal/domain"
)

// Error codes returned in JSON error responses.
const (
	codeBadRequest      = "bad_request"
	codeMeetingNotFound = "meeting_not_found"
	codeProviderError   = "provider_error"
	codeSessionEnded    = "session_ended"
	codeInternalError   = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Indexer is the slice of the index engine the API needs (ISP).
type Indexer interface {
	SearchSimilar(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
	Rebuild(ctx context.Context, meetings []domain.Meeting) error
	Len() int
}

// SessionAdmin is the operator surface of the session manager (ISP).
type SessionAdmin interface {
	ClearAll() int
}

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	chat          *chat.Service
	idx           Indexer
	meetings      domain.MeetingReader
	sessions      SessionAdmin
	store         Pinger
	embedding     domain.HealthChecker
	searchTopK    int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. embedding can be nil.
func NewServer(
	chatSvc *chat.Service,
	idx Indexer,
	meetings domain.MeetingReader,
	sessions SessionAdmin,
	store Pinger,
	embedding domain.HealthChecker,
	searchTopK int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:       chatSvc,
		idx:        idx,
		meetings:   meetings,
		sessions:   sessions,
		store:      store,
		embedding:  embedding,
		searchTopK: searchTopK,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrMeetingNotFound, http.StatusNotFound, codeMeetingNotFound),
		sentinelHandler(domain.ErrSessionEnded, http.StatusConflict, codeSessionEnded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes mounts the API on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/chat/query", s.ChatQuery)
	r.Get("/v1/search", s.Search)
	r.Post("/v1/index/rebuild", s.RebuildIndex)
	r.Post("/v1/sessions/clear", s.ClearSessions)
	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// ChatQuery handles POST /v1/chat/query.
func (s *Server) ChatQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Query is required")
		return
	}

	result, err := s.chat.Query(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Search handles GET /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Query parameter is required")
		return
	}

	topK := s.searchTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	results, err := s.idx.SearchSimilar(r.Context(), query, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.ScoredChunk{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// RebuildIndex handles POST /v1/index/rebuild. Reads the full archive and
// rebuilds vectors and metadata from scratch.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.meetings.All(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if err := s.idx.Rebuild(r.Context(), meetings); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "index rebuilt",
		"chunks":  s.idx.Len(),
	})
}

// ClearSessions handles POST /v1/sessions/clear.
func (s *Server) ClearSessions(w http.ResponseWriter, _ *http.Request) {
	cleared := s.sessions.ClearAll()
	writeJSON(w, http.StatusOK, map[string]any{"cleared_sessions": cleared})
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed",
			zap.String("component", "storage"), zap.Error(err))
		checks["storage"] = "error"
	} else {
		checks["storage"] = "ok"
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed",
				zap.String("component", "embedding"), zap.Error(err))
			checks["embedding"] = "error"
		} else {
			checks["embedding"] = "ok"
		}
	}

	status, httpStatus := "ok", http.StatusOK
	for _, v := range checks {
		if v == "error" {
			status, httpStatus = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":       status,
		"checks":       checks,
		"index_chunks": s.idx.Len(),
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage returns a message safe for API responses. Sentinel errors
// expose their text; anything else collapses to a generic message.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMeetingNotFound,
		domain.ErrSessionEnded,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrIndexSnapshotFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
