package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/meetscribe/meetscribe/internal/domain"
	"github.com/meetscribe/meetscribe/internal/metrics"
)

// SuggesterOptions holds suggestion generation policy.
type SuggesterOptions struct {
	TopK      int
	TailChars int
	Window    time.Duration
	FPChars   int
	Timeout   time.Duration
	PoolSize  int64
}

// Suggester turns an accepted utterance into contextual hints grounded on
// prior meetings. Generation concurrency is bounded by a semaphore shared
// across all sessions; each call carries its own timeout.
type Suggester struct {
	search  Searcher
	gen     domain.Generator
	limiter *fingerprintLimiter
	sem     *semaphore.Weighted
	opts    SuggesterOptions
	logger  *zap.Logger

	now func() time.Time
}

func NewSuggester(search Searcher, gen domain.Generator, opts SuggesterOptions, logger *zap.Logger) *Suggester {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	return &Suggester{
		search:  search,
		gen:     gen,
		limiter: newFingerprintLimiter(opts.Window, opts.FPChars),
		sem:     semaphore.NewWeighted(opts.PoolSize),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Suggest returns suggestions for one utterance, or nil when rate-limited,
// nothing relevant was found, or generation failed. Failures never propagate;
// a transcription update is useful without suggestions.
func (s *Suggester) Suggest(ctx context.Context, utterance, fullTranscript string) []domain.Suggestion {
	if !s.limiter.Allow(utterance) {
		metrics.SuggestionsTotal.WithLabelValues("rate_limited").Inc()
		return nil
	}

	chunks, err := s.search.SearchSimilar(ctx, utterance, s.opts.TopK)
	if err != nil {
		metrics.SuggestionsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("suggestion retrieval failed", zap.Error(err))
		return nil
	}
	if len(chunks) == 0 {
		metrics.SuggestionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.sem.Acquire(genCtx, 1); err != nil {
		metrics.SuggestionsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("suggestion pool saturated", zap.Error(err))
		return nil
	}
	defer s.sem.Release(1)

	raw, err := s.gen.Generate(genCtx, s.buildPrompt(utterance, fullTranscript, chunks))
	if err != nil {
		metrics.SuggestionsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("suggestion generation failed", zap.Error(err))
		return nil
	}

	suggestions, ok := s.parse(raw, chunks)
	if !ok {
		metrics.SuggestionsTotal.WithLabelValues("fallback").Inc()
		return s.fallback(chunks)
	}
	if len(suggestions) == 0 {
		metrics.SuggestionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	metrics.SuggestionsTotal.WithLabelValues("generated").Inc()
	return suggestions
}

func (s *Suggester) buildPrompt(utterance, fullTranscript string, chunks []domain.ScoredChunk) string {
	var contextText strings.Builder
	for _, c := range chunks {
		contextText.WriteString(c.Text)
		contextText.WriteByte('\n')
	}

	return fmt.Sprintf(`Based on the current conversation context and previous meeting history, provide helpful suggestions.

Current sentence: %q
Current conversation context: %q

Relevant previous information:
%s
Provide 2-3 brief, actionable suggestions that could help in this conversation.
Format as a JSON array of objects with 'type' and 'suggestion' fields.
Types can be: 'reminder', 'context', 'action', 'question'

Example:
[
    {"type": "reminder", "suggestion": "Last meeting you mentioned working on project X"},
    {"type": "context", "suggestion": "This relates to the Q2 goals discussed in March"}
]`, utterance, tailRunes(fullTranscript, s.opts.TailChars), contextText.String())
}

// parse extracts the JSON array from the model output. Models wrap arrays in
// prose or code fences; the outermost bracket pair is authoritative.
func (s *Suggester) parse(raw string, chunks []domain.ScoredChunk) ([]domain.Suggestion, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var parsed []struct {
		Type       string `json:"type"`
		Suggestion string `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		s.logger.Debug("unparseable suggestion payload", zap.Error(err))
		return nil, false
	}

	sources := sourceMeetings(chunks)
	now := s.now()

	out := make([]domain.Suggestion, 0, len(parsed))
	for _, p := range parsed {
		if p.Suggestion == "" {
			continue
		}
		out = append(out, domain.Suggestion{
			Type:       p.Type,
			Suggestion: p.Suggestion,
			Timestamp:  now,
			Sources:    sources,
		})
	}
	return out, true
}

// fallback produces a single context suggestion naming the best-matching
// meeting when the model's output could not be parsed.
func (s *Suggester) fallback(chunks []domain.ScoredChunk) []domain.Suggestion {
	top := chunks[0]
	return []domain.Suggestion{{
		Type:       domain.SuggestionContext,
		Suggestion: "Related to previous meeting: " + top.MeetingTitle,
		Timestamp:  s.now(),
		Sources: []domain.SuggestionSource{
			{ID: top.MeetingID, Title: top.MeetingTitle},
		},
	}}
}

// sourceMeetings dedupes retrieved chunks into their meetings, best first.
func sourceMeetings(chunks []domain.ScoredChunk) []domain.SuggestionSource {
	seen := make(map[string]bool, len(chunks))
	out := make([]domain.SuggestionSource, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.MeetingID] {
			continue
		}
		seen[c.MeetingID] = true
		out = append(out, domain.SuggestionSource{ID: c.MeetingID, Title: c.MeetingTitle})
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
