// Package media shells out to ffmpeg for the audio conversions the speech
// engines need: browsers deliver WebM/Opus chunks, the streaming recognizer
// wants raw 16-bit mono PCM, the batch engine wants a file on disk.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// wavHeaderSize is the canonical RIFF header length ffmpeg emits for PCM WAV.
const wavHeaderSize = 44

// Converter wraps ffmpeg invocations. Safe for concurrent use.
type Converter struct {
	tmpDir string
	logger *zap.Logger
}

func NewConverter(tmpDir string, logger *zap.Logger) *Converter {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Converter{tmpDir: tmpDir, logger: logger}
}

// ToPCM converts a compressed audio chunk to raw 16-bit mono PCM at the given
// sample rate by stripping the WAV header from ffmpeg's output.
func (c *Converter) ToPCM(ctx context.Context, audio []byte, sampleRate int) ([]byte, error) {
	in, err := c.writeTemp(audio, "chunk-*.webm")
	if err != nil {
		return nil, err
	}
	defer os.Remove(in)

	out := in + ".wav"
	defer os.Remove(out)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", in,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Warn("ffmpeg conversion failed",
			zap.Error(err),
			zap.String("stderr", tail(stderr.String(), 512)),
		)
		return nil, fmt.Errorf("ffmpeg: %w: %w", domain.ErrAudioConversion, err)
	}

	wav, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read converted audio: %w", err)
	}
	if len(wav) <= wavHeaderSize {
		return nil, fmt.Errorf("converted audio too small (%d bytes): %w", len(wav), domain.ErrAudioConversion)
	}

	return wav[wavHeaderSize:], nil
}

// SpoolFile writes an audio chunk to a temp file for the batch engine and
// returns its path. The caller removes it when done.
func (c *Converter) SpoolFile(audio []byte) (string, error) {
	return c.writeTemp(audio, "batch-*.webm")
}

func (c *Converter) writeTemp(data []byte, pattern string) (string, error) {
	f, err := os.CreateTemp(c.tmpDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
