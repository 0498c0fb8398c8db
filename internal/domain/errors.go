// Package domain holds the shared types and contracts between layers.
package domain

import "errors"

// KeyPrefix namespaces all Redis keys written by this service.
const KeyPrefix = "meetscribe:"

var (
	// ErrMeetingNotFound signals a missing meeting record.
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrSessionEnded signals an operation on a session that already transitioned to Ended.
	ErrSessionEnded = errors.New("session ended")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a text-generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrRecognizerUnavailable signals that the streaming engine could not supply a recognizer.
	ErrRecognizerUnavailable = errors.New("recognizer unavailable")
	// ErrIndexSnapshotFailed signals that the in-memory index mutated but the
	// durable snapshot write failed. Recovery path is a full rebuild.
	ErrIndexSnapshotFailed = errors.New("index snapshot failed")
	// ErrAudioConversion signals that an audio chunk could not be converted to
	// the encoding the active engine requires.
	ErrAudioConversion = errors.New("audio conversion failed")
)
