package realtime

import (
	"sync"
	"time"
)

// fingerprintLimiter allows one suggestion generation per utterance
// fingerprint per window. Near-identical utterances share a fingerprint
// (their leading characters), so partial recognitions of the same sentence
// collapse into one generation.
type fingerprintLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	fpChars int
	last    map[string]time.Time

	now func() time.Time
}

func newFingerprintLimiter(window time.Duration, fpChars int) *fingerprintLimiter {
	return &fingerprintLimiter{
		window:  window,
		fpChars: fpChars,
		last:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether a generation may run for this utterance now, and
// records the attempt if so. Entries older than the window are evicted on
// every call to keep the map bounded by recent traffic.
func (l *fingerprintLimiter) Allow(utterance string) bool {
	fp := l.fingerprint(utterance)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, t := range l.last {
		if now.Sub(t) >= l.window {
			delete(l.last, k)
		}
	}

	if t, ok := l.last[fp]; ok && now.Sub(t) < l.window {
		return false
	}
	l.last[fp] = now
	return true
}

func (l *fingerprintLimiter) fingerprint(utterance string) string {
	runes := []rune(utterance)
	if len(runes) > l.fpChars {
		runes = runes[:l.fpChars]
	}
	return string(runes)
}
