package contest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"exam-prep-platform/pkg/kv"
)

// ErrQueueEmpty reports that a blocking pop timed out without a batch.
var ErrQueueEmpty = errors.New("submission queue empty")

// Queue implements the submission queue protocol on top of Redis lists.
// Producers LPUSH batch payloads; workers BRPOP them, so each batch is
// delivered to exactly one worker.
type Queue struct {
	store *kv.Store
}

// NewQueue wires the queue protocol to the shared KV store.
func NewQueue(store *kv.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue pushes one user's batch onto the contest's submission queue.
func (q *Queue) Enqueue(ctx context.Context, batch *Batch) error {
	if batch.ContestID == "" || batch.UserID == "" {
		return fmt.Errorf("batch missing contest_id or user_id")
	}
	if len(batch.Submissions) == 0 {
		return fmt.Errorf("batch has no submissions")
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	key := kv.SubmissionQueueKey(batch.ContestID)
	if err := q.store.Client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue batch: %w", err)
	}
	return nil
}

// Dequeue atomically pops one batch from the given queue, blocking up to
// timeout. Returns ErrQueueEmpty when the timeout elapses with no item.
func (q *Queue) Dequeue(ctx context.Context, queueKey string, timeout time.Duration) (*Batch, error) {
	values, err := q.store.Client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", queueKey, err)
	}

	// BRPOP returns [key, value].
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(values))
	}

	var batch Batch
	if err := json.Unmarshal([]byte(values[1]), &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch from %s: %w", queueKey, err)
	}
	return &batch, nil
}

// Len returns the current length of one submission queue.
func (q *Queue) Len(ctx context.Context, queueKey string) (int64, error) {
	n, err := q.store.Client.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", queueKey, err)
	}
	return n, nil
}

// ActiveQueues scans for submission queues and returns those with at least
// one pending batch, together with the lengths of everything scanned.
func (q *Queue) ActiveQueues(ctx context.Context) (active []string, lengths map[string]int64, err error) {
	keys, err := q.store.ScanSubmissionQueues(ctx)
	if err != nil {
		return nil, nil, err
	}

	lengths = make(map[string]int64, len(keys))
	for _, key := range keys {
		n, err := q.Len(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		lengths[key] = n
		if n > 0 {
			active = append(active, key)
		}
	}
	return active, lengths, nil
}

// EmitGrading pushes a drained contest id onto the grading handoff list.
func (q *Queue) EmitGrading(ctx context.Context, contestID string) error {
	if err := q.store.Client.LPush(ctx, kv.GradingQueue, contestID).Err(); err != nil {
		return fmt.Errorf("failed to push %s to grading list: %w", contestID, err)
	}
	return nil
}

// DrainGrading pops every pending contest id off the grading handoff list.
// The list is the durable discovery channel: a submission queue's key
// disappears when its last batch is popped, but the handoff entry survives
// until the grading worker reads it.
func (q *Queue) DrainGrading(ctx context.Context) ([]string, error) {
	var ids []string
	for {
		id, err := q.store.Client.RPop(ctx, kv.GradingQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ids, nil
			}
			return nil, fmt.Errorf("failed to drain grading list: %w", err)
		}
		ids = append(ids, id)
	}
}

// PublishGraded announces a completed rating run for realtime consumers.
func (q *Queue) PublishGraded(ctx context.Context, contestID string) error {
	if err := q.store.Client.Publish(ctx, kv.GradedEventsChannel, contestID).Err(); err != nil {
		return fmt.Errorf("failed to publish graded event for %s: %w", contestID, err)
	}
	return nil
}
