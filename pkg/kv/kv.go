package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout shared by producers, workers, and the session authorizer.
const (
	// SubmissionQueuePrefix is the per-contest submission list prefix; the
	// contest UUID is the suffix.
	SubmissionQueuePrefix = "contest:submissions:"

	// SubmissionQueuePattern matches every contest submission queue.
	SubmissionQueuePattern = SubmissionQueuePrefix + "*"

	// GradingQueue receives contest ids whose submission queue drained. The
	// grading worker drains it to discover contests whose queue key no longer
	// exists; the empty-threshold rule still decides when grading runs.
	GradingQueue = "contest:grading"

	// GradedEventsChannel carries contest ids whose ratings were just
	// recomputed, for realtime leaderboard fan-out.
	GradedEventsChannel = "contest:events:graded"
)

// Store wraps the shared Redis client.
type Store struct {
	Client *redis.Client
}

// Connect opens a Redis client from a URL and verifies it with a ping.
func Connect(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{Client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.Client.Close()
}

// Ping checks Redis liveness with a short timeout.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(pingCtx).Err()
}

// SubmissionQueueKey returns the list key for one contest's submissions.
func SubmissionQueueKey(contestID string) string {
	return SubmissionQueuePrefix + contestID
}

// ContestIDFromQueueKey extracts the contest id suffix from a submission
// queue key. Returns "" if the key is not a submission queue.
func ContestIDFromQueueKey(key string) string {
	if !strings.HasPrefix(key, SubmissionQueuePrefix) {
		return ""
	}
	return strings.TrimPrefix(key, SubmissionQueuePrefix)
}

// ActiveSessionKey returns the single-active-session mirror key for a user.
func ActiveSessionKey(userID string) string {
	return "active_session:" + userID
}

// ForceLogoutKey returns the displaced-session marker key.
func ForceLogoutKey(sessionID string) string {
	return "force_logout:" + sessionID
}

// ScanSubmissionQueues enumerates every contest submission queue key with a
// cursor-based scan. Never uses KEYS.
func (s *Store) ScanSubmissionQueues(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.Client.Scan(ctx, cursor, SubmissionQueuePattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission queues: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
