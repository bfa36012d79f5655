package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-prep-platform/internal/contest"
	"exam-prep-platform/pkg/kv"
	"exam-prep-platform/pkg/telemetry"
)

// testQueue connects to TEST_REDIS_URL or skips.
func testQueue(t *testing.T) (*kv.Store, *contest.Queue) {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}
	store, err := kv.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, contest.NewQueue(store)
}

func newTestGradingWorker(queue *contest.Queue, emptyThreshold time.Duration) (*GradingWorker, map[string]int) {
	w := NewGradingWorker(nil, queue, telemetry.NewMetrics(prometheus.NewRegistry()), time.Second, emptyThreshold)
	calls := make(map[string]int)
	w.grade = func(ctx context.Context, contestID string) error {
		calls[contestID]++
		return nil
	}
	return w, calls
}

// TestGradingDiscoversDrainedContest covers the steady-state discovery path:
// a submission queue that is created and fully consumed between two scans
// leaves no key behind, so the contest must reach the worker through the
// grading handoff list.
func TestGradingDiscoversDrainedContest(t *testing.T) {
	store, queue := testQueue(t)
	ctx := context.Background()

	contestID := uuid.NewString()
	key := kv.SubmissionQueueKey(contestID)
	t.Cleanup(func() { store.Client.Del(ctx, key) })

	require.NoError(t, queue.Enqueue(ctx, &contest.Batch{
		ContestID: contestID,
		UserID:    "u1",
		Submissions: []contest.Submission{
			{QuestionID: uuid.NewString(), UserAnswer: []string{"7"}, TimeTaken: 3},
		},
	}))
	_, err := queue.Dequeue(ctx, key, time.Second)
	require.NoError(t, err)

	// The queue key is gone now that its last batch was popped.
	exists, err := store.Client.Exists(ctx, key).Result()
	require.NoError(t, err)
	require.Zero(t, exists)

	require.NoError(t, queue.EmitGrading(ctx, contestID))

	w, calls := newTestGradingWorker(queue, 0)
	require.Eventually(t, func() bool {
		if err := w.iterate(ctx); err != nil {
			t.Logf("iterate: %v", err)
			return false
		}
		return calls[contestID] >= 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.True(t, w.known[contestID])
	assert.True(t, w.graded[contestID])

	// A later handoff for the same contest clears its graded mark so new
	// batches get ranked.
	require.NoError(t, queue.EmitGrading(ctx, contestID))
	require.Eventually(t, func() bool {
		if err := w.iterate(ctx); err != nil {
			t.Logf("iterate: %v", err)
			return false
		}
		return calls[contestID] >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

// TestGradingWaitsForQuietWindow verifies that a handed-off contest is
// remembered but not graded before the empty threshold elapses.
func TestGradingWaitsForQuietWindow(t *testing.T) {
	_, queue := testQueue(t)
	ctx := context.Background()

	contestID := uuid.NewString()
	require.NoError(t, queue.EmitGrading(ctx, contestID))

	w, calls := newTestGradingWorker(queue, time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.iterate(ctx))
	}

	assert.True(t, w.known[contestID])
	assert.Zero(t, calls[contestID])
	assert.False(t, w.graded[contestID])
}
