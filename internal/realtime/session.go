package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// session is the mutable record for one live transcription session. The mutex
// serializes chunk processing; sessions are independent of each other.
type session struct {
	mu sync.Mutex

	id    string
	mode  domain.SessionMode
	state domain.SessionState

	// recognizer is non-nil only in assistant mode after the streaming
	// engine handed one out. Owned by the session; closed on end.
	recognizer domain.StreamRecognizer

	fullTranscript string
	suggestions    []domain.Suggestion

	startTime  time.Time
	lastUpdate time.Time
}

// appendText adds accepted text to the transcript unless it is already a
// substring of it. Streaming recognizers re-emit growing prefixes of the same
// sentence; the substring check collapses them.
func (s *session) appendText(text string, now time.Time) {
	if text == "" || strings.Contains(s.fullTranscript, text) {
		return
	}
	if s.fullTranscript == "" {
		s.fullTranscript = text
	} else {
		s.fullTranscript += " " + text
	}
	s.lastUpdate = now
}

// sessionStore is the concurrent registry of live sessions.
type sessionStore struct {
	mu   sync.RWMutex
	byID map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{byID: make(map[string]*session)}
}

// getOrCreate returns the session for an ID, creating it on first use.
// Reports whether this call created it.
func (st *sessionStore) getOrCreate(id string, create func() *session) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.byID[id]; ok {
		return sess, false
	}
	sess := create()
	st.byID[id] = sess
	return sess, true
}

func (st *sessionStore) get(id string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.byID[id]
	return sess, ok
}

func (st *sessionStore) remove(id string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byID[id]
	if ok {
		delete(st.byID, id)
	}
	return sess, ok
}

func (st *sessionStore) drain() []*session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*session, 0, len(st.byID))
	for _, sess := range st.byID {
		out = append(out, sess)
	}
	st.byID = make(map[string]*session)
	return out
}

func (s *session) snapshot(engine string) domain.SessionData {
	data := domain.SessionData{
		SessionID:      s.id,
		State:          s.state.String(),
		Mode:           s.mode,
		Engine:         engine,
		FullTranscript: s.fullTranscript,
		LastUpdate:     s.lastUpdate,
	}
	data.Suggestions = append(data.Suggestions, s.suggestions...)
	return data
}
