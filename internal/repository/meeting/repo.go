// Package meeting stores the meeting archive as one hash per meeting.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/meetscribe/meetscribe/internal/db"
	"github.com/meetscribe/meetscribe/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "meeting:"

// store is the consumer interface for the meeting archive (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements domain.MeetingReader plus the write side used when a
// recording session is finalized.
type Repo struct {
	store store
}

func New(s store) *Repo {
	return &Repo{store: s}
}

// Save creates or replaces a meeting.
func (r *Repo) Save(ctx context.Context, m domain.Meeting) error {
	if m.ID == "" {
		return errors.New("meeting id is empty")
	}
	fields, err := buildHashFields(m)
	if err != nil {
		return fmt.Errorf("encode meeting %s: %w", m.ID, err)
	}
	if err := r.store.HSet(ctx, meetingKey(m.ID), fields); err != nil {
		return fmt.Errorf("hset meeting %s: %w", m.ID, err)
	}
	return nil
}

// Get returns a meeting by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.Meeting, error) {
	fields, err := r.store.HGetAll(ctx, meetingKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Meeting{}, domain.ErrMeetingNotFound
		}
		return domain.Meeting{}, fmt.Errorf("hgetall meeting %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	return parseHashFields(id, fields)
}

// All returns every meeting sorted by CreatedAt then ID.
func (r *Repo) All(ctx context.Context) ([]domain.Meeting, error) {
	meetings, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(meetings, func(i, j int) bool {
		if !meetings[i].CreatedAt.Equal(meetings[j].CreatedAt) {
			return meetings[i].CreatedAt.Before(meetings[j].CreatedAt)
		}
		return meetings[i].ID < meetings[j].ID
	})
	return meetings, nil
}

// Recent returns up to n meetings ordered newest first.
func (r *Repo) Recent(ctx context.Context, n int) ([]domain.Meeting, error) {
	meetings, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(meetings, func(i, j int) bool {
		if !meetings[i].CreatedAt.Equal(meetings[j].CreatedAt) {
			return meetings[i].CreatedAt.After(meetings[j].CreatedAt)
		}
		return meetings[i].ID > meetings[j].ID
	})
	if n > 0 && len(meetings) > n {
		meetings = meetings[:n]
	}
	return meetings, nil
}

// Delete removes a meeting.
func (r *Repo) Delete(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, meetingKey(id))
	if err != nil {
		return fmt.Errorf("check exists %s: %w", id, err)
	}
	if !exists {
		return domain.ErrMeetingNotFound
	}
	if err := r.store.Del(ctx, meetingKey(id)); err != nil {
		return fmt.Errorf("del meeting %s: %w", id, err)
	}
	return nil
}

func (r *Repo) load(ctx context.Context) ([]domain.Meeting, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan meetings: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	all, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall meetings: %w", err)
	}

	meetings := make([]domain.Meeting, 0, len(keys))
	for i, fields := range all {
		if len(fields) == 0 {
			continue
		}
		m, err := parseHashFields(meetingID(keys[i]), fields)
		if err != nil {
			return nil, fmt.Errorf("parse meeting %s: %w", keys[i], err)
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func meetingKey(id string) string {
	return keyPrefix + id
}

func meetingID(key string) string {
	return strings.TrimPrefix(key, keyPrefix)
}
