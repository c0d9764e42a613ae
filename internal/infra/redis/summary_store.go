package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-arena/internal/domain"
)

// SummaryStore persists finished-session summaries as JSON blobs so the
// persistence collaborator can pick them up after the session is evicted.
type SummaryStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryStore(client *redis.Client, ttl time.Duration) *SummaryStore {
	return &SummaryStore{client: client, ttl: ttl}
}

func (s *SummaryStore) SaveSummary(ctx context.Context, summary domain.SessionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, s.key(summary.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

// LoadSummary fetches a stored summary, primarily for tests and tooling.
func (s *SummaryStore) LoadSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("load summary: %w", err)
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.SessionSummary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return summary, nil
}

func (s *SummaryStore) key(sessionID string) string {
	return "arena:summary:" + sessionID
}
