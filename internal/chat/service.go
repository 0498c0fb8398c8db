// Package chat answers natural-language questions about the meeting archive:
// classify the query, retrieve relevant meetings through the vector index,
// and generate a grounded answer.
package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// noMeetingsResponse is returned verbatim when retrieval finds nothing; the
// generator is not called in that case.
const noMeetingsResponse = "I couldn't find any relevant meetings for your query. " +
	"Please try a different question or check if you have any meetings recorded."

// Searcher retrieves index chunks similar to a query (ISP).
type Searcher interface {
	SearchSimilar(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// Options holds retrieval and context policy.
type Options struct {
	SearchTopK      int // chunks fetched per query
	RecentFallback  int // meetings returned when retrieval finds nothing
	ContextMeetings int // meetings included in the prompt
	ExcerptChars    int // transcript excerpt cap per meeting
}

// MeetingRef is a lightweight reference to a relevant meeting in a result.
type MeetingRef struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Relevance float64   `json:"relevance_score"`
}

// Result is the full answer to one chat query.
type Result struct {
	Query            string       `json:"query"`
	Response         string       `json:"response"`
	QueryType        string       `json:"query_type"`
	MeetingsFound    int          `json:"meetings_found"`
	RelevantMeetings []MeetingRef `json:"relevant_meetings"`
}

// Service orchestrates classification, retrieval, and answer generation.
type Service struct {
	search   Searcher
	meetings domain.MeetingReader
	gen      domain.Generator
	opts     Options
	logger   *zap.Logger
}

func NewService(
	search Searcher,
	meetings domain.MeetingReader,
	gen domain.Generator,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		search:   search,
		meetings: meetings,
		gen:      gen,
		opts:     opts,
		logger:   logger,
	}
}

// Query answers a natural-language question about the archive.
func (s *Service) Query(ctx context.Context, query string) (Result, error) {
	analysis := Classify(query)

	relevant, err := s.RelevantMeetings(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve meetings: %w", err)
	}

	answer, err := s.Answer(ctx, query, analysis, relevant)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Query:         query,
		Response:      answer,
		QueryType:     analysis.Type,
		MeetingsFound: len(relevant),
	}
	for i, m := range relevant {
		if i >= s.opts.ContextMeetings {
			break
		}
		result.RelevantMeetings = append(result.RelevantMeetings, MeetingRef{
			ID:        m.Meeting.ID,
			Title:     m.Meeting.Title,
			CreatedAt: m.Meeting.CreatedAt,
			Relevance: m.Relevance,
		})
	}

	s.logger.Info("chat query answered",
		zap.String("query_type", analysis.Type),
		zap.Int("meetings_found", len(relevant)),
	)
	return result, nil
}

// RelevantMeetings retrieves meetings for a query: semantic search first,
// deduped by meeting with the best chunk similarity as the score; when the
// index has nothing, the most recent meetings serve as unscored fallback.
// Never fails on an empty archive.
func (s *Service) RelevantMeetings(ctx context.Context, query string) ([]domain.ScoredMeeting, error) {
	chunks, err := s.search.SearchSimilar(ctx, query, s.opts.SearchTopK)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	if len(chunks) == 0 {
		recent, err := s.meetings.Recent(ctx, s.opts.RecentFallback)
		if err != nil {
			return nil, fmt.Errorf("recent fallback: %w", err)
		}
		out := make([]domain.ScoredMeeting, 0, len(recent))
		for _, m := range recent {
			out = append(out, domain.ScoredMeeting{Meeting: m})
		}
		return out, nil
	}

	best := make(map[string]float64)
	order := make([]string, 0)
	for _, c := range chunks {
		if _, ok := best[c.MeetingID]; !ok {
			order = append(order, c.MeetingID)
		}
		if c.Similarity > best[c.MeetingID] {
			best[c.MeetingID] = c.Similarity
		}
	}

	out := make([]domain.ScoredMeeting, 0, len(order))
	for _, id := range order {
		m, err := s.meetings.Get(ctx, id)
		if err != nil {
			// Index may reference a deleted meeting until the next rebuild.
			s.logger.Warn("indexed meeting missing", zap.String("meeting_id", id), zap.Error(err))
			continue
		}
		out = append(out, domain.ScoredMeeting{Meeting: m, Relevance: best[id], Scored: true})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	return out, nil
}

// Answer generates a response grounded on the given meetings. Without
// meetings it returns the fixed no-results message and skips the generator.
func (s *Service) Answer(ctx context.Context, query string, analysis Analysis, meetings []domain.ScoredMeeting) (string, error) {
	if len(meetings) == 0 {
		return noMeetingsResponse, nil
	}

	prompt := buildPrompt(query, analysis, meetings, s.opts.ContextMeetings, s.opts.ExcerptChars)

	answer, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
