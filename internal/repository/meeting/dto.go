package meeting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meetscribe/meetscribe/internal/domain"
)

// buildHashFields converts a meeting into a flat map[string]string for HSET.
// List fields are JSON-encoded; CreatedAt is RFC3339Nano.
func buildHashFields(m domain.Meeting) (map[string]string, error) {
	keyPoints, err := json.Marshal(m.KeyPoints)
	if err != nil {
		return nil, fmt.Errorf("marshal key points: %w", err)
	}
	actionItems, err := json.Marshal(m.ActionItems)
	if err != nil {
		return nil, fmt.Errorf("marshal action items: %w", err)
	}

	return map[string]string{
		"title":        m.Title,
		"transcript":   m.Transcript,
		"summary":      m.Summary,
		"key_points":   string(keyPoints),
		"action_items": string(actionItems),
		"status":       m.Status,
		"created_at":   m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// parseHashFields converts a flat hash map back into a meeting.
func parseHashFields(id string, fields map[string]string) (domain.Meeting, error) {
	m := domain.Meeting{
		ID:         id,
		Title:      fields["title"],
		Transcript: fields["transcript"],
		Summary:    fields["summary"],
		Status:     fields["status"],
	}

	if raw := fields["key_points"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.KeyPoints); err != nil {
			return domain.Meeting{}, fmt.Errorf("unmarshal key points: %w", err)
		}
	}
	if raw := fields["action_items"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.ActionItems); err != nil {
			return domain.Meeting{}, fmt.Errorf("unmarshal action items: %w", err)
		}
	}
	if raw := fields["created_at"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Meeting{}, fmt.Errorf("parse created_at: %w", err)
		}
		m.CreatedAt = ts
	}

	return m, nil
}
