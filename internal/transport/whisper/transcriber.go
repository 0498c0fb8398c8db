// Package whisper sends audio files to a faster-whisper server speaking the
// OpenAI-compatible transcription API and maps its verbose_json response to
// the batch engine contract.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// Transcriber implements domain.BatchTranscriber.
type Transcriber struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// Config holds the batch engine settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

func New(cfg *Config) *Transcriber {
	return &Transcriber{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// verboseResponse is the verbose_json transcription payload.
type verboseResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// Transcribe uploads the file and returns the transcription. Confidence is
// derived from the mean segment log-probability; a response without segments
// gets a neutral 0.8.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (domain.BatchResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	body, contentType, err := buildMultipart(f, filepath.Base(audioPath), t.model)
	if err != nil {
		return domain.BatchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.BatchResult{}, fmt.Errorf("transcription API error %d: %s", resp.StatusCode, detail)
	}

	var parsed verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.BatchResult{}, fmt.Errorf("decode transcription: %w", err)
	}

	result := domain.BatchResult{
		Text:       strings.TrimSpace(parsed.Text),
		Language:   parsed.Language,
		Confidence: 0.8,
	}
	if len(parsed.Segments) > 0 {
		var logprob float64
		for _, s := range parsed.Segments {
			logprob += s.AvgLogprob
			result.Segments = append(result.Segments, domain.Segment{
				StartSec: s.Start,
				EndSec:   s.End,
				Text:     strings.TrimSpace(s.Text),
			})
		}
		result.Confidence = math.Exp(logprob / float64(len(parsed.Segments)))
		if result.Confidence > 1 {
			result.Confidence = 1
		}
	}

	t.logger.Debug("batch transcription completed",
		zap.String("file", filepath.Base(audioPath)),
		zap.Int("segments", len(result.Segments)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

func buildMultipart(f io.Reader, filename, model string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if model != "" {
		if err := w.WriteField("model", model); err != nil {
			return nil, "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := w.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("write format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
