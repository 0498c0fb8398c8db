package domain

import "context"

// Engine names reported in transcription responses so the caller always knows
// which backend produced a given chunk.
const (
	EngineStream = "stream"
	EngineBatch  = "batch"
)

// StreamResult is one recognition result from the low-latency engine.
type StreamResult struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// StreamRecognizer is a dedicated per-session recognizer over fixed-rate
// single-channel raw audio. Not safe for concurrent use; the session manager
// serializes access.
type StreamRecognizer interface {
	// Feed pushes one raw PCM frame and returns the recognition state so far.
	Feed(ctx context.Context, pcm []byte) (StreamResult, error)
	Close() error
}

// RecognizerFactory allocates streaming recognizers.
type RecognizerFactory interface {
	CreateRecognizer(ctx context.Context, sampleRate int) (StreamRecognizer, error)
	Ready() bool
}

// BatchResult is the output of the high-accuracy file-based engine.
type BatchResult struct {
	Text       string
	Language   string
	Confidence float64
	Segments   []Segment
}

// Segment is a timestamped portion of a batch transcription.
type Segment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// BatchTranscriber transcribes an audio file on disk. Higher latency than the
// streaming engine; used for standard mode and as the per-chunk fallback.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (BatchResult, error)
}
